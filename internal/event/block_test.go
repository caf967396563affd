package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventloom/icsync/pkg/errors"
)

func TestRenderBlockRoundTrip(t *testing.T) {
	london := mustLoadLocation(t, "Europe/London")
	n, err := Normalize(Source{
		UID:         "abc-1",
		Summary:     "Quarterly review",
		Location:    "Room A",
		URL:         "https://example.com/q1",
		Description: "Agenda to follow.",
		Start:       time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		End:         time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		HasEnd:      true,
	}, london)
	require.NoError(t, err)

	b, err := ParseBlock(n.Block)
	require.NoError(t, err)

	assert.Equal(t, "2024-01-01 09:00", b.Start)
	assert.Equal(t, "2024-01-01 10:00", b.End)
	assert.Equal(t, "public", b.Status)
	assert.Equal(t, "Quarterly review", b.Name)
	assert.Equal(t, "Room A", b.Location)
	assert.Equal(t, "Europe/London", b.Timezone)

	assert.Equal(t, n.Attrs.Triple(), b.Triple())
}

func TestRenderBlockRoundTripQuotedValues(t *testing.T) {
	n, err := Normalize(Source{
		UID:      "abc-2",
		Summary:  `Gala "Night"`,
		Location: `Hall "B", Main St \ rear entrance`,
		Start:    time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC),
	}, time.UTC)
	require.NoError(t, err)

	b, err := ParseBlock(n.Block)
	require.NoError(t, err)

	assert.Equal(t, `Gala "Night"`, b.Name)
	assert.Equal(t, `Hall "B", Main St \ rear entrance`, b.Location)
	assert.Equal(t, n.Attrs.Triple(), b.Triple())
}

func TestRenderBlockBodyLines(t *testing.T) {
	n, err := Normalize(Source{
		UID:         "abc-2",
		Summary:     "Talk",
		Location:    "Hall B",
		URL:         "https://example.com/t",
		Description: "Doors at 18:30.",
		Start:       time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC),
	}, time.UTC)
	require.NoError(t, err)

	assert.Contains(t, n.Block, "**Location:** Hall B")
	assert.Contains(t, n.Block, "**Link:** https://example.com/t")
	assert.Contains(t, n.Block, "\n\nDoors at 18:30.")
	assert.Contains(t, n.Block, "[/event]")
}

func TestParseBlockRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "no tag at all", raw: "just a human-written post"},
		{name: "eventual is not a tag", raw: "[eventual] something"},
		{name: "unterminated opening tag", raw: `[event start="2024-01-01 09:00"`},
		{name: "missing equals", raw: `[event start "x"] [/event]`},
		{name: "unquoted value", raw: `[event start=2024] [/event]`},
		{name: "unterminated value", raw: `[event start="2024] [/event]`},
		{name: "missing terminator", raw: `[event start="2024-01-01 09:00"] body`},
		{name: "missing start attribute", raw: `[event name="x"] [/event]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBlock(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.IsParse(err), "expected a parse error, got %v", err)
		})
	}
}

func TestParseBlockToleratesSurroundingContent(t *testing.T) {
	raw := "<!-- ICSUID:0123456789abcdef -->\n" +
		`[event start="2024-01-01 09:00" end="2024-01-01 10:00" status="public" name="X" location="Room A" timezone="Europe/London"]` +
		"\nbody\n[/event]\nmoderator note appended below\n"

	b, err := ParseBlock(raw)
	require.NoError(t, err)
	assert.Equal(t, Triple{Start: "2024-01-01 09:00", End: "2024-01-01 10:00", Location: "room a"}, b.Triple())
}

func TestParseBlockUnknownAttributesIgnored(t *testing.T) {
	raw := `[event start="2024-01-01 09:00" minutes="60"]` + "\n[/event]"
	b, err := ParseBlock(raw)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01 09:00", b.Start)
}

func TestLegacyShift(t *testing.T) {
	london := mustLoadLocation(t, "Europe/London")

	// BST date: +60 minutes.
	shifted, ok := LegacyShift("2024-06-01 09:00", london)
	require.True(t, ok)
	assert.Equal(t, "2024-06-01 10:00", shifted)

	// Winter date: offset zero, no variant.
	_, ok = LegacyShift("2024-01-01 09:00", london)
	assert.False(t, ok)

	// Unparseable input.
	_, ok = LegacyShift("yesterday-ish", london)
	assert.False(t, ok)
}

func TestCandidateTriples(t *testing.T) {
	london := mustLoadLocation(t, "Europe/London")

	c := Canonical{
		Start:    "2024-06-01 09:00",
		End:      "2024-06-01 10:00",
		Location: "room a",
	}
	got := CandidateTriples(c, london)

	require.Len(t, got, 4)
	assert.Equal(t, c.Triple(), got[0], "canonical triple comes first")
	assert.True(t, ContainsTriple(got, Triple{Start: "2024-06-01 10:00", End: "2024-06-01 10:00", Location: "room a"}))
	assert.True(t, ContainsTriple(got, Triple{Start: "2024-06-01 09:00", End: "2024-06-01 11:00", Location: "room a"}))
	assert.True(t, ContainsTriple(got, Triple{Start: "2024-06-01 10:00", End: "2024-06-01 11:00", Location: "room a"}))
}

func TestCandidateTriplesZeroOffset(t *testing.T) {
	c := Canonical{Start: "2024-01-01 09:00", End: "2024-01-01 10:00", Location: "room a"}
	got := CandidateTriples(c, time.UTC)
	assert.Equal(t, []Triple{c.Triple()}, got)
}

func TestContainsTimeKey(t *testing.T) {
	set := []Triple{{Start: "2024-01-01 09:00", End: "2024-01-01 10:00", Location: "room a"}}
	assert.True(t, ContainsTimeKey(set, Triple{Start: "2024-01-01 09:00", End: "2024-01-01 10:00", Location: "somewhere else"}))
	assert.False(t, ContainsTimeKey(set, Triple{Start: "2024-01-01 09:30", End: "2024-01-01 10:00"}))
}
