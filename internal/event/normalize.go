package event

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/eventloom/icsync/pkg/constants"
	"github.com/eventloom/icsync/pkg/errors"
)

var lowerCaser = cases.Lower(language.Und)

// Normalized is the output of Normalize: everything downstream stages
// need to match and reconcile one event.
type Normalized struct {
	UID   string
	Title string

	// Block is the rendered event block, without the identity marker.
	Block string

	Attrs Canonical
}

// Normalize converts a source event into its canonical form.
//
// Timezone resolution: values carrying an explicit offset are converted
// to the site timezone; floating values are interpreted as already being
// in the site timezone. There is no implicit UTC step; that was the
// legacy convention, covered only by CandidateTriples for matching.
func Normalize(src Source, siteTZ *time.Location) (Normalized, error) {
	if strings.TrimSpace(src.UID) == "" {
		return Normalized{}, errors.NewParseError("ics", "event", "missing UID", nil)
	}
	if siteTZ == nil {
		siteTZ = time.UTC
	}

	summary := src.Summary
	if strings.TrimSpace(summary) == "" {
		summary = "Untitled event"
	}

	start := renderLocal(src.Start, src, siteTZ)
	end := ""
	if src.HasEnd {
		end = renderLocal(src.End, src, siteTZ)
	}

	attrs := Canonical{
		Start:       start,
		End:         end,
		Location:    NormalizeLocation(src.Location),
		Summary:     summary,
		Description: strings.TrimSpace(src.Description),
		URL:         strings.TrimSpace(src.URL),
		Timezone:    siteTZ.String(),
	}

	return Normalized{
		UID:   src.UID,
		Title: summary,
		Block: renderBlock(src, attrs),
		Attrs: attrs,
	}, nil
}

// renderLocal renders one event time as "YYYY-MM-DD HH:MM" in the site
// timezone. Floating values are reinterpreted wall-clock; all-day values
// render as local midnight.
func renderLocal(t time.Time, src Source, siteTZ *time.Location) string {
	switch {
	case src.AllDay:
		t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, siteTZ)
	case src.Floating:
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, siteTZ)
	default:
		t = t.In(siteTZ)
	}
	return t.Format(constants.TimeFormatCanonical)
}

// NormalizeLocation normalizes a location string for comparison:
// lowercase, split on commas, trim and collapse internal whitespace per
// segment, drop empties, deduplicate preserving first-occurrence order,
// rejoin with ", ". "UP Physics C05,up  physics c05" collapses to
// "up physics c05".
func NormalizeLocation(s string) string {
	s = lowerCaser.String(s)
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.Join(strings.Fields(part), " ")
		if part == "" {
			continue
		}
		seen := false
		for _, prev := range out {
			if prev == part {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, part)
		}
	}
	return strings.Join(out, ", ")
}

// LooseLocationMatch treats empty as wildcard and otherwise accepts
// exact equality or containment in either direction. Used only in
// time-only dedupe mode.
func LooseLocationMatch(a, b string) bool {
	if a == "" || b == "" {
		return true
	}
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}

// normText lowercases and trims a canonical time (or other attribute)
// for comparison.
func normText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
