// Package ics reads calendar feeds: fetching the payload from a file or
// URL, parsing VEVENT components, and optionally expanding recurrence
// rules into per-occurrence events with stable derived UIDs.
package ics

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/rs/zerolog"

	"github.com/eventloom/icsync/internal/event"
	"github.com/eventloom/icsync/pkg/errors"
)

// Component is one parsed VEVENT: the normalized event fields plus the
// recurrence properties expansion needs.
type Component struct {
	event.Source

	Sequence     int
	RawRRule     string
	ExDates      []time.Time
	RecurrenceID *time.Time
}

// IsOverride reports whether this component overrides one instance of a
// recurring event rather than defining a series.
func (c Component) IsOverride() bool {
	return c.RecurrenceID != nil
}

// Parse parses an ICS payload. Individual malformed VEVENTs are logged
// and skipped so one broken component never sinks the feed.
func Parse(body []byte, log zerolog.Logger) ([]Component, error) {
	if len(body) == 0 {
		return nil, errors.NewParseError("ics", "", "empty payload", nil)
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, errors.WrapParse("ics", "", err)
	}

	var out []Component
	for _, ve := range cal.Events() {
		c, err := parseVEvent(ve)
		if err != nil {
			log.Warn().Err(err).Msg("skipping malformed VEVENT")
			continue
		}
		out = append(out, c)
	}

	log.Debug().Int("components", len(out)).Msg("parsed calendar")
	return out, nil
}

func parseVEvent(ve *ical.VEvent) (Component, error) {
	var c Component

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return c, errors.NewParseError("ics", "", "VEVENT missing UID", nil)
	}
	c.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		c.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		c.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		c.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyUrl); p != nil {
		c.URL = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			c.Sequence = n
		}
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return c, errors.NewParseError("ics", c.UID, "VEVENT missing DTSTART", nil)
	}
	c.AllDay = isDateOnly(dtStart)
	c.Floating = !c.AllDay && isFloating(dtStart)

	var err error
	if c.AllDay {
		c.Start, err = ve.GetAllDayStartAt()
	} else {
		c.Start, err = ve.GetStartAt()
	}
	if err != nil {
		return c, errors.WrapParse("ics", c.UID, err)
	}

	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil && dtEnd.Value != "" {
		if c.AllDay {
			c.End, err = ve.GetAllDayEndAt()
		} else {
			c.End, err = ve.GetEndAt()
		}
		if err != nil {
			return c, errors.WrapParse("ics", c.UID, err)
		}
		c.HasEnd = true
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		c.RawRRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseTimestamp(part); err == nil {
				c.ExDates = append(c.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseTimestamp(p.Value); err == nil {
			c.RecurrenceID = &t
		}
	}

	return c, nil
}

// isDateOnly reports whether DTSTART carries a date without a time, the
// all-day convention.
func isDateOnly(p *ical.IANAProperty) bool {
	if params := p.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(p.Value, "T")
}

// isFloating reports whether DTSTART has neither a UTC designator nor a
// TZID parameter, so the value is wall-clock time with no zone.
func isFloating(p *ical.IANAProperty) bool {
	if strings.HasSuffix(p.Value, "Z") {
		return false
	}
	if params := p.ICalParameters; params != nil {
		if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
			return false
		}
	}
	return true
}

// parseTimestamp handles the basic EXDATE / RECURRENCE-ID value shapes.
func parseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.NewParseError("ics", "", "empty timestamp", nil)
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, time.UTC)
	default:
		return time.ParseInLocation("20060102", v, time.UTC)
	}
}
