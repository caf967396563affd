package ics

import (
	"time"

	"github.com/rs/zerolog"
	rrule "github.com/teambition/rrule-go"

	"github.com/eventloom/icsync/internal/event"
	"github.com/eventloom/icsync/pkg/constants"
)

// ExpandOptions controls recurrence expansion.
type ExpandOptions struct {
	// Now anchors the expansion window. Zero means time.Now().
	Now time.Time

	// Horizon is how far past Now occurrences are generated.
	Horizon time.Duration

	// MaxPerEvent caps occurrences per recurring event.
	MaxPerEvent int
}

func (o ExpandOptions) withDefaults() ExpandOptions {
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.Horizon <= 0 {
		o.Horizon = constants.DefaultExpandHorizon
	}
	if o.MaxPerEvent <= 0 {
		o.MaxPerEvent = constants.MaxOccurrencesPerEvent
	}
	return o
}

// Flatten returns one event per component without recurrence expansion.
// Recurring series contribute their base event only; override components
// replace nothing and are dropped.
func Flatten(components []Component) []event.Source {
	out := make([]event.Source, 0, len(components))
	for _, c := range components {
		if c.IsOverride() {
			continue
		}
		out = append(out, c.Source)
	}
	return out
}

// Expand turns components into concrete events within [Now, Now+Horizon].
// Non-recurring events pass through with their original UID. Each
// occurrence of a recurring event gets a derived UID of the form
// "uid#20240601T0900" so every instance reconciles to its own record.
// EXDATE removes instances; RECURRENCE-ID overrides replace them.
func Expand(components []Component, opts ExpandOptions, log zerolog.Logger) []event.Source {
	opts = opts.withDefaults()
	windowEnd := opts.Now.Add(opts.Horizon)

	overrides := make(map[string][]Component)
	for _, c := range components {
		if c.IsOverride() {
			overrides[c.UID] = append(overrides[c.UID], c)
		}
	}

	var out []event.Source
	for _, c := range components {
		if c.IsOverride() {
			continue
		}
		if c.RawRRule == "" {
			out = append(out, c.Source)
			continue
		}
		out = append(out, expandSeries(c, overrides[c.UID], opts.Now, windowEnd, opts.MaxPerEvent, log)...)
	}
	return out
}

func expandSeries(c Component, overrides []Component, from, until time.Time, maxOcc int, log zerolog.Logger) []event.Source {
	rule, err := rrule.StrToRRule(c.RawRRule)
	if err != nil {
		log.Warn().Err(err).Str("uid", c.UID).Str("rrule", c.RawRRule).Msg("unparseable RRULE, keeping base event only")
		return []event.Source{c.Source}
	}
	rule.DTStart(c.Start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range c.ExDates {
		set.ExDate(ex.In(c.Start.Location()))
	}

	starts := set.Between(from.In(c.Start.Location()), until.In(c.Start.Location()), true)
	if len(starts) > maxOcc {
		log.Warn().Str("uid", c.UID).Int("cap", maxOcc).Msg("recurrence expansion truncated")
		starts = starts[:maxOcc]
	}

	duration := c.End.Sub(c.Start)
	out := make([]event.Source, 0, len(starts))
	for _, start := range starts {
		src := c.Source
		if o, ok := overrideFor(overrides, start); ok {
			src = o.Source
		} else {
			src.Start = start
			if c.HasEnd {
				src.End = start.Add(duration)
			}
		}
		src.UID = occurrenceUID(c.UID, start)
		out = append(out, src)
	}
	return out
}

// overrideFor matches a RECURRENCE-ID against an occurrence start.
func overrideFor(overrides []Component, start time.Time) (Component, bool) {
	for _, o := range overrides {
		if o.RecurrenceID != nil && o.RecurrenceID.In(start.Location()).Equal(start) {
			return o, true
		}
	}
	return Component{}, false
}

// occurrenceUID derives a stable per-instance UID. The instance key uses
// the occurrence's own wall clock so it survives timezone configuration
// changes on the site.
func occurrenceUID(uid string, start time.Time) string {
	return uid + "#" + start.Format(constants.TimeFormatInstanceKey)
}
