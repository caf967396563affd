package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokensDeterministic(t *testing.T) {
	const uid = "4e9b7d20-5b3a@calendar.example.com"

	assert.Equal(t, TagToken(uid), TagToken(uid))
	assert.Equal(t, MarkerToken(uid), MarkerToken(uid))

	// Known-answer check: widths and prefixes are part of the on-record
	// format and must stay stable.
	tag := TagToken(uid)
	marker := MarkerToken(uid)
	require.True(t, strings.HasPrefix(tag, "ics-"))
	require.True(t, strings.HasPrefix(marker, "ICSUID:"))
	assert.Len(t, strings.TrimPrefix(tag, "ics-"), 10)
	assert.Len(t, strings.TrimPrefix(marker, "ICSUID:"), 16)

	// Tag and marker share the hash but not the truncation.
	assert.Equal(t,
		strings.TrimPrefix(tag, "ics-"),
		strings.TrimPrefix(marker, "ICSUID:")[:10])
}

func TestTokensDifferPerUID(t *testing.T) {
	assert.NotEqual(t, TagToken("uid-a"), TagToken("uid-b"))
	assert.NotEqual(t, MarkerToken("uid-a"), MarkerToken("uid-b"))
}

func TestTagVariants(t *testing.T) {
	// Mixed-case UID with padding produces three distinct variants.
	variants := TagVariants("  ABC-1  ")
	assert.Len(t, variants, 3)
	assert.Equal(t, TagToken("  ABC-1  "), variants[0])
	assert.Equal(t, TagToken("ABC-1"), variants[1])
	assert.Equal(t, TagToken("abc-1"), variants[2])

	// Already-normalized lowercase UID collapses to one.
	assert.Equal(t, []string{TagToken("abc-1")}, TagVariants("abc-1"))

	// Whitespace or case drift in the upstream UID still reaches the
	// same record: the drifted form's variants include the original tag.
	original := TagToken("abc-1")
	assert.Contains(t, TagVariants(" abc-1"), original)
	assert.Contains(t, TagVariants("ABC-1"), original)
}

func TestEmbedStripRoundTrip(t *testing.T) {
	marker := MarkerToken("abc-1")
	content := "[event start=\"2024-01-01 09:00\"]\nbody\n[/event]"

	raw := Embed(marker, content)
	assert.True(t, HasMarker(raw, marker))
	assert.Equal(t, content+"\n", Strip(raw))
}

func TestStripIsCaseInsensitiveAndRepeatable(t *testing.T) {
	marker := MarkerToken("abc-1")
	raw := "<!--  " + strings.ToLower(marker) + "  -->\ncontent"

	assert.Equal(t, "content", Strip(raw))
	// Content without a marker passes through untouched.
	assert.Equal(t, "content", Strip("content"))
}

func TestHasMarker(t *testing.T) {
	marker := MarkerToken("abc-1")
	assert.True(t, HasMarker("<!-- "+strings.ToUpper(marker)+" -->", marker))
	assert.False(t, HasMarker("<!-- "+MarkerToken("other")+" -->", marker))
}
