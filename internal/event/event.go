// Package event converts source calendar events into the canonical form
// the reconciliation engine operates on: a rendered event block for the
// remote record, canonical (start, end, location) attributes used as the
// unit of equality during matching, and the legacy time variants needed
// to recognize records written under the old floating-time-as-UTC
// convention.
package event

import "time"

// Source is an externally parsed calendar event. It is immutable and
// produced once per sync cycle per event by the source reader.
type Source struct {
	UID         string
	Summary     string
	Description string
	Location    string
	URL         string

	// Start and End carry the event times. For timezone-aware values the
	// instant is authoritative. For floating values only the wall-clock
	// fields matter; Floating is set and the normalizer reinterprets
	// them in the site timezone.
	Start time.Time
	End   time.Time

	// HasEnd is false when the source event carries no DTEND.
	HasEnd bool

	// AllDay marks a date-only event, rendered as local midnight.
	AllDay bool

	// Floating marks timezone-naive start/end values.
	Floating bool
}

// Canonical holds the normalized attributes derived deterministically
// from a Source. Start and End are "YYYY-MM-DD HH:MM" strings in the
// site timezone; Location is normalized for comparison.
type Canonical struct {
	Start       string
	End         string
	Location    string
	Summary     string
	Description string
	URL         string
	Timezone    string
}

// Triple is the canonical (start, end, location) unit of equality used
// for duplicate detection throughout the matching pipeline.
type Triple struct {
	Start    string
	End      string
	Location string
}

// TimeKey returns the (start, end) pair, used by time-only dedupe mode
// where location is relaxed to a containment check.
func (t Triple) TimeKey() Triple {
	return Triple{Start: t.Start, End: t.End}
}

// Triple returns the canonical triple for these attributes.
func (c Canonical) Triple() Triple {
	return Triple{
		Start:    normText(c.Start),
		End:      normText(c.End),
		Location: c.Location,
	}
}
