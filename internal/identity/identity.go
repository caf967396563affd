// Package identity derives the deterministic tokens that bind a source
// event UID to a remote record: a short searchable tag token and a
// longer marker token embedded invisibly in record content. A UID always
// maps to the same tokens, across runs and processes; the widths and
// prefixes must never change or every previously synced record is
// orphaned.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/eventloom/icsync/pkg/constants"
)

// TagToken returns the tag used for indexed lookup of a UID's record,
// e.g. "ics-1a2b3c4d5e".
func TagToken(uid string) string {
	return constants.TagTokenPrefix + hashPrefix(uid, constants.TagTokenWidth)
}

// MarkerToken returns the in-content marker token for a UID,
// e.g. "ICSUID:1a2b3c4d5e6f7a8b".
func MarkerToken(uid string) string {
	return constants.MarkerTokenPrefix + hashPrefix(uid, constants.MarkerTokenWidth)
}

// TagVariants returns tag tokens for the UID as-is, trimmed, and trimmed
// plus lowercased, deduplicated in generation order. Upstream systems
// occasionally drift in whitespace or case when emitting UIDs; hashing
// the normalized forms keeps lookups working across that drift.
func TagVariants(uid string) []string {
	candidates := []string{
		uid,
		strings.TrimSpace(uid),
		strings.ToLower(strings.TrimSpace(uid)),
	}

	var out []string
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		tag := TagToken(c)
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// markerRe matches an embedded marker comment plus any trailing
// whitespace, so stripping it leaves clean content for comparison.
var markerRe = regexp.MustCompile(fmt.Sprintf(`(?i)<!--\s*%s[0-9a-f]{%d}\s*-->\s*`,
	constants.MarkerTokenPrefix, constants.MarkerTokenWidth))

// Embed prepends the marker comment to content. The comment renders as
// nothing, so the record looks unchanged to readers.
func Embed(markerToken, content string) string {
	return "<!-- " + markerToken + " -->\n" + content + "\n"
}

// Strip removes any embedded marker comments from raw content. Both the
// stored and the freshly rendered content are stripped before diffing so
// a marker alone never counts as a change.
func Strip(raw string) string {
	return markerRe.ReplaceAllString(raw, "")
}

// HasMarker reports whether raw already contains the given marker token,
// case-insensitively.
func HasMarker(raw, markerToken string) bool {
	return strings.Contains(strings.ToLower(raw), strings.ToLower(markerToken))
}

func hashPrefix(s string, width int) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:width]
}
