// scry/pkg/features/address.go

package features

import (
	"fmt"
	"sort"
)

// AddressKind distinguishes the flavors of location identifier an
// extractor may report.
type AddressKind uint8

const (
	AddrAbsolute AddressKind = iota
	AddrRelative
	AddrFileOffset
	AddrNone
)

// Address is an opaque, totally ordered location identifier. Addresses
// are comparable values and safe to use as map keys.
type Address struct {
	Kind  AddressKind
	Value uint64
}

func AbsoluteAddress(v uint64) Address {
	return Address{Kind: AddrAbsolute, Value: v}
}

func RelativeAddress(v uint64) Address {
	return Address{Kind: AddrRelative, Value: v}
}

func FileOffsetAddress(v uint64) Address {
	return Address{Kind: AddrFileOffset, Value: v}
}

// NoAddress is the sentinel for locations that have no meaningful
// address, such as the file scope itself.
func NoAddress() Address {
	return Address{Kind: AddrNone}
}

// Less orders addresses kind-first so that mixed-kind sets sort stably.
func (a Address) Less(b Address) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return a.Value < b.Value
}

func (a Address) String() string {
	switch a.Kind {
	case AddrAbsolute:
		return fmt.Sprintf("absolute(0x%x)", a.Value)
	case AddrRelative:
		return fmt.Sprintf("relative(0x%x)", a.Value)
	case AddrFileOffset:
		return fmt.Sprintf("file(0x%x)", a.Value)
	case AddrNone:
		return "no address"
	default:
		return fmt.Sprintf("address(%d, 0x%x)", a.Kind, a.Value)
	}
}

// AddressSet is an unordered, duplicate-free collection of addresses.
type AddressSet struct {
	members map[Address]struct{}
}

func NewAddressSet(addrs ...Address) *AddressSet {
	s := &AddressSet{members: make(map[Address]struct{}, len(addrs))}
	for _, a := range addrs {
		s.members[a] = struct{}{}
	}
	return s
}

func (s *AddressSet) Add(addrs ...Address) {
	for _, a := range addrs {
		s.members[a] = struct{}{}
	}
}

// Union adds every member of other into s.
func (s *AddressSet) Union(other *AddressSet) {
	if other == nil {
		return
	}
	for a := range other.members {
		s.members[a] = struct{}{}
	}
}

func (s *AddressSet) Contains(a Address) bool {
	_, ok := s.members[a]
	return ok
}

func (s *AddressSet) Len() int {
	return len(s.members)
}

func (s *AddressSet) Clone() *AddressSet {
	c := &AddressSet{members: make(map[Address]struct{}, len(s.members))}
	for a := range s.members {
		c.members[a] = struct{}{}
	}
	return c
}

// Sorted returns the members in ascending order. Result rendering relies
// on this for byte-identical output across runs.
func (s *AddressSet) Sorted() []Address {
	out := make([]Address, 0, len(s.members))
	for a := range s.members {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
