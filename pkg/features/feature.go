// scry/pkg/features/feature.go

package features

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Kind tags the flavor of an observable fact.
type Kind string

const (
	KindString         Kind = "string"
	KindBytes          Kind = "bytes"
	KindNumber         Kind = "number"
	KindAPI            Kind = "api"
	KindMnemonic       Kind = "mnemonic"
	KindOffset         Kind = "offset"
	KindCharacteristic Kind = "characteristic"
	// KindBasicBlock marks one basic block within a function's feature
	// set; counting these gives the structural block counter.
	KindBasicBlock Kind = "basic block"
	// KindMatchedRule is the synthetic feature injected by the pipeline
	// when a rule has already matched within the current span.
	KindMatchedRule Kind = "match"
)

// Feature is an immutable observable fact at an address. Str carries
// string-like payloads (including hex-normalized bytes), Num carries
// numeric payloads. Features are comparable values: structural equality
// and map-key hashing come for free.
type Feature struct {
	Kind Kind
	Str  string
	Num  uint64
}

func StringFeature(s string) Feature {
	return Feature{Kind: KindString, Str: s}
}

// BytesFeature normalizes the payload to lowercase hex so equality is
// structural regardless of the extractor's formatting.
func BytesFeature(b []byte) Feature {
	return Feature{Kind: KindBytes, Str: hex.EncodeToString(b)}
}

func NumberFeature(n uint64) Feature {
	return Feature{Kind: KindNumber, Num: n}
}

func APIFeature(name string) Feature {
	return Feature{Kind: KindAPI, Str: name}
}

func MnemonicFeature(name string) Feature {
	return Feature{Kind: KindMnemonic, Str: strings.ToLower(name)}
}

func OffsetFeature(v uint64) Feature {
	return Feature{Kind: KindOffset, Num: v}
}

func CharacteristicFeature(name string) Feature {
	return Feature{Kind: KindCharacteristic, Str: name}
}

func BasicBlockFeature() Feature {
	return Feature{Kind: KindBasicBlock}
}

func MatchedRuleFeature(ruleName string) Feature {
	return Feature{Kind: KindMatchedRule, Str: ruleName}
}

func (f Feature) String() string {
	switch f.Kind {
	case KindNumber, KindOffset:
		return fmt.Sprintf("%s(0x%x)", f.Kind, f.Num)
	case KindBasicBlock:
		return string(f.Kind)
	default:
		return fmt.Sprintf("%s(%s)", f.Kind, f.Str)
	}
}

// KnownKind reports whether k belongs to the feature vocabulary.
func KnownKind(k Kind) bool {
	switch k {
	case KindString, KindBytes, KindNumber, KindAPI, KindMnemonic,
		KindOffset, KindCharacteristic, KindBasicBlock, KindMatchedRule:
		return true
	default:
		return false
	}
}
