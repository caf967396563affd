package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventloom/icsync/pkg/logging"
)

const sampleFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//icsync tests//EN
BEGIN:VEVENT
UID:timed@example.org
SUMMARY:Timed event
DESCRIPTION:A timed event with a zone
LOCATION:Main Hall
URL:https://example.org/timed
SEQUENCE:2
DTSTART;TZID=Europe/London:20240601T100000
DTEND;TZID=Europe/London:20240601T120000
END:VEVENT
BEGIN:VEVENT
UID:floating@example.org
SUMMARY:Floating event
DTSTART:20240602T090000
DTEND:20240602T100000
END:VEVENT
BEGIN:VEVENT
UID:allday@example.org
SUMMARY:All day event
DTSTART;VALUE=DATE:20240603
DTEND;VALUE=DATE:20240604
END:VEVENT
BEGIN:VEVENT
SUMMARY:Broken, no UID
DTSTART:20240604T090000
END:VEVENT
END:VCALENDAR
`

func feed(t *testing.T, s string) []byte {
	t.Helper()
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParseFeed(t *testing.T) {
	components, err := Parse(feed(t, sampleFeed), logging.Nop)
	require.NoError(t, err)
	require.Len(t, components, 3, "the UID-less VEVENT is skipped")

	byUID := make(map[string]Component)
	for _, c := range components {
		byUID[c.UID] = c
	}

	timed, ok := byUID["timed@example.org"]
	require.True(t, ok)
	assert.Equal(t, "Timed event", timed.Summary)
	assert.Equal(t, "A timed event with a zone", timed.Description)
	assert.Equal(t, "Main Hall", timed.Location)
	assert.Equal(t, "https://example.org/timed", timed.URL)
	assert.Equal(t, 2, timed.Sequence)
	assert.False(t, timed.AllDay)
	assert.False(t, timed.Floating)
	assert.True(t, timed.HasEnd)
	// 10:00 BST is 09:00 UTC.
	assert.True(t, timed.Start.Equal(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)))
	assert.True(t, timed.End.Equal(time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC)))

	floating, ok := byUID["floating@example.org"]
	require.True(t, ok)
	assert.True(t, floating.Floating)
	assert.False(t, floating.AllDay)
	assert.Equal(t, 9, floating.Start.Hour())
	assert.Equal(t, time.June, floating.Start.Month())
	assert.Equal(t, 2, floating.Start.Day())

	allday, ok := byUID["allday@example.org"]
	require.True(t, ok)
	assert.True(t, allday.AllDay)
	assert.False(t, allday.Floating)
	assert.True(t, allday.HasEnd)
	assert.Equal(t, 3, allday.Start.Day())
}

func TestParseRecurrenceProperties(t *testing.T) {
	const recurring = `BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
UID:series@example.org
SUMMARY:Weekly series
DTSTART:20240603T090000Z
DTEND:20240603T100000Z
RRULE:FREQ=WEEKLY;COUNT=4
EXDATE:20240610T090000Z
END:VEVENT
BEGIN:VEVENT
UID:series@example.org
SUMMARY:Moved instance
RECURRENCE-ID:20240617T090000Z
DTSTART:20240617T140000Z
DTEND:20240617T150000Z
END:VEVENT
END:VCALENDAR
`
	components, err := Parse(feed(t, recurring), logging.Nop)
	require.NoError(t, err)
	require.Len(t, components, 2)

	var base, override Component
	for _, c := range components {
		if c.IsOverride() {
			override = c
		} else {
			base = c
		}
	}

	assert.Equal(t, "FREQ=WEEKLY;COUNT=4", base.RawRRule)
	require.Len(t, base.ExDates, 1)
	assert.True(t, base.ExDates[0].Equal(time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)))

	require.NotNil(t, override.RecurrenceID)
	assert.True(t, override.RecurrenceID.Equal(time.Date(2024, 6, 17, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Moved instance", override.Summary)
}

func TestParseRejectsEmptyAndGarbage(t *testing.T) {
	_, err := Parse(nil, logging.Nop)
	assert.Error(t, err)

	_, err = Parse([]byte("not a calendar at all"), logging.Nop)
	assert.Error(t, err)
}
