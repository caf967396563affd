package event

import (
	"time"

	"github.com/eventloom/icsync/pkg/constants"
)

// LegacyShift produces the legacy-encoding variant of a canonical time
// string: the value shifted by the site timezone's UTC offset at that
// instant. This matches the old behavior of treating floating times as
// UTC and then converting to local. Returns false when the string does
// not parse or the offset is zero.
func LegacyShift(s string, siteTZ *time.Location) (string, bool) {
	if s == "" || siteTZ == nil {
		return "", false
	}
	naive, err := time.Parse(constants.TimeFormatCanonical, s)
	if err != nil {
		return "", false
	}
	aware := time.Date(naive.Year(), naive.Month(), naive.Day(), naive.Hour(), naive.Minute(), 0, 0, siteTZ)
	_, offset := aware.Zone()
	if offset == 0 {
		return "", false
	}
	return naive.Add(time.Duration(offset) * time.Second).Format(constants.TimeFormatCanonical), true
}

// CandidateTriples returns every triple a pre-existing record for these
// attributes may carry: the canonical triple plus all combinations of
// legacy-shifted start/end. Order is deterministic with the canonical
// triple first; duplicates are dropped.
func CandidateTriples(c Canonical, siteTZ *time.Location) []Triple {
	base := c.Triple()
	out := []Triple{base}

	add := func(t Triple) {
		for _, prev := range out {
			if prev == t {
				return
			}
		}
		out = append(out, t)
	}

	startLegacy, okStart := LegacyShift(c.Start, siteTZ)
	endLegacy, okEnd := LegacyShift(c.End, siteTZ)

	if okStart {
		add(Triple{Start: normText(startLegacy), End: base.End, Location: base.Location})
	}
	if okEnd {
		add(Triple{Start: base.Start, End: normText(endLegacy), Location: base.Location})
	}
	if okStart && okEnd {
		add(Triple{Start: normText(startLegacy), End: normText(endLegacy), Location: base.Location})
	}

	return out
}

// ContainsTriple reports whether candidate is one of the triples in set.
func ContainsTriple(set []Triple, candidate Triple) bool {
	for _, t := range set {
		if t == candidate {
			return true
		}
	}
	return false
}

// ContainsTimeKey reports whether candidate's (start, end) pair matches
// any triple in set, ignoring location.
func ContainsTimeKey(set []Triple, candidate Triple) bool {
	for _, t := range set {
		if t.Start == candidate.Start && t.End == candidate.End {
			return true
		}
	}
	return false
}
