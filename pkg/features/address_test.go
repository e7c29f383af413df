// scry/pkg/features/address_test.go

package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddressOrdering(t *testing.T) {
	// Same kind orders by value.
	assert.True(t, AbsoluteAddress(0x10).Less(AbsoluteAddress(0x20)))
	assert.False(t, AbsoluteAddress(0x20).Less(AbsoluteAddress(0x10)))
	assert.False(t, AbsoluteAddress(0x10).Less(AbsoluteAddress(0x10)))

	// Mixed kinds order kind-first regardless of value.
	assert.True(t, AbsoluteAddress(0xffff).Less(RelativeAddress(0x1)))
	assert.True(t, RelativeAddress(0xffff).Less(FileOffsetAddress(0x1)))
	assert.True(t, FileOffsetAddress(0xffff).Less(NoAddress()))
}

func TestAddressString(t *testing.T) {
	assert.Equal(t, "absolute(0x401000)", AbsoluteAddress(0x401000).String())
	assert.Equal(t, "relative(0x10)", RelativeAddress(0x10).String())
	assert.Equal(t, "file(0x3c)", FileOffsetAddress(0x3c).String())
	assert.Equal(t, "no address", NoAddress().String())
}

func TestAddressSetDeduplicates(t *testing.T) {
	s := NewAddressSet(AbsoluteAddress(0x10), AbsoluteAddress(0x10), AbsoluteAddress(0x20))
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains(AbsoluteAddress(0x10)))
	assert.True(t, s.Contains(AbsoluteAddress(0x20)))
	assert.False(t, s.Contains(AbsoluteAddress(0x30)))

	s.Add(AbsoluteAddress(0x10))
	assert.Equal(t, 2, s.Len())
}

func TestAddressSetUnion(t *testing.T) {
	a := NewAddressSet(AbsoluteAddress(0x10), AbsoluteAddress(0x20))
	b := NewAddressSet(AbsoluteAddress(0x20), AbsoluteAddress(0x30))

	a.Union(b)
	assert.Equal(t, 3, a.Len())
	// The other set is untouched.
	assert.Equal(t, 2, b.Len())

	// Union with nil is a no-op.
	a.Union(nil)
	assert.Equal(t, 3, a.Len())
}

func TestAddressSetSorted(t *testing.T) {
	s := NewAddressSet(
		RelativeAddress(0x5),
		AbsoluteAddress(0x30),
		AbsoluteAddress(0x10),
		AbsoluteAddress(0x20),
	)

	sorted := s.Sorted()
	assert.Equal(t, []Address{
		AbsoluteAddress(0x10),
		AbsoluteAddress(0x20),
		AbsoluteAddress(0x30),
		RelativeAddress(0x5),
	}, sorted)
}

func TestAddressSetCloneIsIndependent(t *testing.T) {
	orig := NewAddressSet(AbsoluteAddress(0x10))
	clone := orig.Clone()

	clone.Add(AbsoluteAddress(0x20))
	assert.Equal(t, 2, clone.Len())
	assert.Equal(t, 1, orig.Len())
}
