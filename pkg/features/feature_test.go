// scry/pkg/features/feature_test.go

package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeatureStructuralEquality(t *testing.T) {
	// Features are plain comparable values.
	assert.Equal(t, StringFeature("kernel32.dll"), StringFeature("kernel32.dll"))
	assert.NotEqual(t, StringFeature("kernel32.dll"), APIFeature("kernel32.dll"))
	assert.NotEqual(t, NumberFeature(0x10), OffsetFeature(0x10))
}

func TestBytesFeatureNormalization(t *testing.T) {
	f := BytesFeature([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	assert.Equal(t, "deadbeef", f.Str)
	assert.Equal(t, f, BytesFeature([]byte{0xde, 0xad, 0xbe, 0xef}))
}

func TestMnemonicFeatureLowercases(t *testing.T) {
	assert.Equal(t, MnemonicFeature("xor"), MnemonicFeature("XOR"))
	assert.Equal(t, "xor", MnemonicFeature("Xor").Str)
}

func TestFeatureString(t *testing.T) {
	assert.Equal(t, "api(VirtualAlloc)", APIFeature("VirtualAlloc").String())
	assert.Equal(t, "number(0x40)", NumberFeature(0x40).String())
	assert.Equal(t, "offset(0x18)", OffsetFeature(0x18).String())
	assert.Equal(t, "basic block", BasicBlockFeature().String())
	assert.Equal(t, "match(create thread)", MatchedRuleFeature("create thread").String())
}

func TestKnownKind(t *testing.T) {
	for _, k := range []Kind{
		KindString, KindBytes, KindNumber, KindAPI, KindMnemonic,
		KindOffset, KindCharacteristic, KindBasicBlock, KindMatchedRule,
	} {
		assert.True(t, KnownKind(k), "expected %q to be a known kind", k)
	}
	assert.False(t, KnownKind("import"))
	assert.False(t, KnownKind(""))
}

func TestSetAddMergesLocations(t *testing.T) {
	s := NewSet()
	s.Add(APIFeature("VirtualAlloc"), AbsoluteAddress(0x10))
	s.Add(APIFeature("VirtualAlloc"), AbsoluteAddress(0x20))

	locs, ok := s.Locations(APIFeature("VirtualAlloc"))
	assert.True(t, ok)
	assert.Equal(t, 2, locs.Len())
	assert.Equal(t, 1, s.Len())
}

func TestSetMerge(t *testing.T) {
	a := NewSet()
	a.Add(StringFeature("one"), AbsoluteAddress(0x10))

	b := NewSet()
	b.Add(StringFeature("one"), AbsoluteAddress(0x20))
	b.Add(StringFeature("two"), AbsoluteAddress(0x30))

	a.Merge(b)
	assert.Equal(t, 2, a.Len())
	locs, _ := a.Locations(StringFeature("one"))
	assert.Equal(t, 2, locs.Len())

	a.Merge(nil)
	assert.Equal(t, 2, a.Len())
}

func TestSetCloneIsDeep(t *testing.T) {
	orig := NewSet()
	orig.Add(StringFeature("one"), AbsoluteAddress(0x10))

	clone := orig.Clone()
	clone.Add(StringFeature("one"), AbsoluteAddress(0x20))
	clone.Add(StringFeature("two"), AbsoluteAddress(0x30))

	assert.Equal(t, 1, orig.Len())
	locs, _ := orig.Locations(StringFeature("one"))
	assert.Equal(t, 1, locs.Len())
}
