// scry/pkg/logic/pattern.go

package logic

import (
	"encoding/hex"
	"fmt"
	"strings"

	"rgehrsitz/scry/pkg/features"
)

// PatternMode selects how a pattern compares against concrete features.
type PatternMode uint8

const (
	// MatchExact matches one concrete feature by structural equality.
	MatchExact PatternMode = iota
	// MatchSubstring matches string features containing a fragment.
	MatchSubstring
	// MatchBytesPrefix matches bytes features starting with a prefix.
	MatchBytesPrefix
	// MatchNumberRange matches number features inside [NumMin, NumMax].
	MatchNumberRange
)

// Pattern is the compiled form of a feature test. Exact patterns hit the
// feature set's hash lookup; the scan modes walk the set.
type Pattern struct {
	Mode   PatternMode
	Exact  features.Feature
	Kind   features.Kind
	Substr string
	Prefix string
	NumMin uint64
	NumMax uint64
}

func ExactPattern(f features.Feature) Pattern {
	return Pattern{Mode: MatchExact, Exact: f, Kind: f.Kind}
}

func SubstringPattern(fragment string) Pattern {
	return Pattern{Mode: MatchSubstring, Kind: features.KindString, Substr: fragment}
}

func BytesPrefixPattern(prefix []byte) Pattern {
	return Pattern{Mode: MatchBytesPrefix, Kind: features.KindBytes, Prefix: hex.EncodeToString(prefix)}
}

func NumberRangePattern(min, max uint64) Pattern {
	return Pattern{Mode: MatchNumberRange, Kind: features.KindNumber, NumMin: min, NumMax: max}
}

// Matches reports whether the concrete feature f satisfies the pattern.
func (p Pattern) Matches(f features.Feature) bool {
	switch p.Mode {
	case MatchExact:
		return f == p.Exact
	case MatchSubstring:
		return f.Kind == features.KindString && strings.Contains(f.Str, p.Substr)
	case MatchBytesPrefix:
		return f.Kind == features.KindBytes && strings.HasPrefix(f.Str, p.Prefix)
	case MatchNumberRange:
		return f.Kind == p.Kind && f.Num >= p.NumMin && f.Num <= p.NumMax
	default:
		return false
	}
}

// FindIn collects the locations of every feature in set matching the
// pattern. The boolean reports whether anything matched.
func (p Pattern) FindIn(set *features.Set) (*features.AddressSet, bool) {
	if p.Mode == MatchExact {
		locs, ok := set.Locations(p.Exact)
		if !ok {
			return features.NewAddressSet(), false
		}
		return locs.Clone(), true
	}

	found := features.NewAddressSet()
	matched := false
	set.Each(func(f features.Feature, locs *features.AddressSet) {
		if p.Matches(f) {
			found.Union(locs)
			matched = true
		}
	})
	return found, matched
}

func (p Pattern) String() string {
	switch p.Mode {
	case MatchExact:
		return p.Exact.String()
	case MatchSubstring:
		return fmt.Sprintf("substring(%s)", p.Substr)
	case MatchBytesPrefix:
		return fmt.Sprintf("bytes(%s...)", p.Prefix)
	case MatchNumberRange:
		return fmt.Sprintf("%s(0x%x..0x%x)", p.Kind, p.NumMin, p.NumMax)
	default:
		return "pattern(?)"
	}
}
