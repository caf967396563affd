package event

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/eventloom/icsync/pkg/errors"
)

// Block is the typed attribute record parsed out of an embedded
// [event ...] tag. It is the on-record representation of the canonical
// attributes, and what every matching stage re-derives from freshly
// fetched content before accepting a candidate.
type Block struct {
	Start    string
	End      string
	Status   string
	Name     string
	Location string
	Timezone string
}

// Triple returns the normalized (start, end, location) triple stored in
// this block.
func (b Block) Triple() Triple {
	return Triple{
		Start:    normText(b.Start),
		End:      normText(b.End),
		Location: NormalizeLocation(b.Location),
	}
}

const (
	blockOpen  = "[event"
	blockClose = "[/event]"
)

// renderBlock renders the canonical content block for a record's first
// entry. Attribute order is fixed so repeated runs produce byte-equal
// content.
func renderBlock(src Source, attrs Canonical) string {
	var sb strings.Builder

	location := strings.TrimSpace(src.Location)

	sb.WriteString(blockOpen)
	fmt.Fprintf(&sb, " start=%q", attrs.Start)
	if attrs.End != "" {
		fmt.Fprintf(&sb, " end=%q", attrs.End)
	}
	fmt.Fprintf(&sb, " status=%q name=%q", "public", attrs.Summary)
	if location != "" {
		fmt.Fprintf(&sb, " location=%q", location)
	}
	fmt.Fprintf(&sb, " timezone=%q]", attrs.Timezone)

	if location != "" {
		sb.WriteString("\n**Location:** " + location)
	}
	if attrs.URL != "" {
		sb.WriteString("\n**Link:** " + attrs.URL)
	}
	if attrs.Description != "" {
		sb.WriteString("\n\n" + attrs.Description)
	}

	sb.WriteString("\n" + blockClose)
	return sb.String()
}

// ParseBlock parses the first embedded event block out of raw record
// content into a typed Block. Malformed blocks are rejected with a
// ParseError rather than returning partial data; callers treat that as
// "no attributes" and skip the candidate.
func ParseBlock(raw string) (Block, error) {
	idx := findBlockOpen(raw)
	if idx < 0 {
		return Block{}, errors.NewParseError("event-block", "", "no [event ...] tag found", nil)
	}
	rest := raw[idx+len(blockOpen):]

	attrs, consumed, err := parseAttrs(rest)
	if err != nil {
		return Block{}, err
	}

	if !containsFold(rest[consumed:], blockClose) {
		return Block{}, errors.NewParseError("event-block", "", "missing [/event] terminator", nil)
	}

	var b Block
	for key, value := range attrs {
		switch key {
		case "start":
			b.Start = value
		case "end":
			b.End = value
		case "status":
			b.Status = value
		case "name":
			b.Name = value
		case "location":
			b.Location = value
		case "timezone":
			b.Timezone = value
		}
	}
	if b.Start == "" {
		return Block{}, errors.NewParseError("event-block", "", "missing start attribute", nil)
	}
	return b, nil
}

// findBlockOpen returns the index of the opening tag, requiring a
// whitespace separator so "[eventual]" in prose does not match.
func findBlockOpen(raw string) int {
	lower := strings.ToLower(raw)
	from := 0
	for {
		i := strings.Index(lower[from:], blockOpen)
		if i < 0 {
			return -1
		}
		i += from
		next := i + len(blockOpen)
		if next < len(raw) && (raw[next] == ' ' || raw[next] == '\t' || raw[next] == '\n') {
			return i
		}
		from = next
	}
}

// parseAttrs lexes key="value" pairs until the closing bracket of the
// opening tag. Values are Go-quoted, so embedded quotes and backslashes
// survive a render/parse round trip.
func parseAttrs(s string) (map[string]string, int, error) {
	attrs := make(map[string]string)
	i := 0
	for {
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) {
			return nil, 0, errors.NewParseError("event-block", "", "unterminated opening tag", nil)
		}
		if s[i] == ']' {
			return attrs, i + 1, nil
		}

		keyStart := i
		for i < len(s) && isAttrNameByte(s[i]) {
			i++
		}
		if i == keyStart {
			return nil, 0, errors.NewParseError("event-block", "",
				fmt.Sprintf("unexpected character %q in opening tag", s[i]), nil)
		}
		key := strings.ToLower(s[keyStart:i])

		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) || s[i] != '=' {
			return nil, 0, errors.NewParseError("event-block", "",
				fmt.Sprintf("attribute %q missing '='", key), nil)
		}
		i++
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) || s[i] != '"' {
			return nil, 0, errors.NewParseError("event-block", "",
				fmt.Sprintf("attribute %q missing quoted value", key), nil)
		}
		quoteStart := i
		i++
		for i < len(s) && s[i] != '"' {
			if s[i] == '\\' {
				i++
			}
			i++
		}
		if i >= len(s) {
			return nil, 0, errors.NewParseError("event-block", "",
				fmt.Sprintf("attribute %q has unterminated value", key), nil)
		}
		value, err := strconv.Unquote(s[quoteStart : i+1])
		if err != nil {
			return nil, 0, errors.NewParseError("event-block", "",
				fmt.Sprintf("attribute %q has malformed value", key), nil)
		}
		attrs[key] = value
		i++
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func isAttrNameByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_' || b == '-'
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
