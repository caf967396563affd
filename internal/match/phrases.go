package match

import (
	"strings"

	"github.com/eventloom/icsync/pkg/constants"
)

// Phrases builds the quoted search phrases for the description-search
// stage from the event title and the rendered block's body lines: the
// title when it is long enough to be distinctive, lines carrying the
// location/link markers, and otherwise any body line of useful length,
// capped and deduplicated.
func Phrases(title, block string) []string {
	var out []string
	seen := make(map[string]struct{})

	add := func(s string) bool {
		s = strings.TrimSpace(s)
		if s == "" {
			return len(out) < constants.MaxSearchPhrases
		}
		quoted := `"` + s + `"`
		if _, dup := seen[quoted]; dup {
			return len(out) < constants.MaxSearchPhrases
		}
		seen[quoted] = struct{}{}
		out = append(out, quoted)
		return len(out) < constants.MaxSearchPhrases
	}

	if len(strings.TrimSpace(title)) >= constants.MinPhraseLength {
		if !add(title) {
			return out
		}
	}

	for _, line := range bodyLines(block) {
		lower := strings.ToLower(line)
		distinguishing := strings.HasPrefix(lower, "**location:**") || strings.HasPrefix(lower, "**link:**")
		if !distinguishing && len(line) < constants.MinPhraseLength {
			continue
		}
		if !add(line) {
			return out
		}
	}
	return out
}

// bodyLines returns the trimmed non-empty lines between the opening
// [event ...] tag and the [/event] terminator.
func bodyLines(block string) []string {
	var out []string
	inside := false
	for _, line := range strings.Split(block, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(lower, "[event ") || strings.HasPrefix(lower, "[event\t") {
			inside = true
			continue
		}
		if lower == "[/event]" {
			break
		}
		if inside && trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
