// scry/pkg/features/set.go

package features

// Set maps each feature observed at an address to the locations where it
// was seen. Sets handed out by an Index are treated as read-only during
// evaluation; the pipeline works on clones when it needs to augment.
type Set struct {
	features map[Feature]*AddressSet
}

func NewSet() *Set {
	return &Set{features: make(map[Feature]*AddressSet)}
}

// Add records f at the given locations, merging with any prior entry.
func (s *Set) Add(f Feature, locs ...Address) {
	existing, ok := s.features[f]
	if !ok {
		existing = NewAddressSet()
		s.features[f] = existing
	}
	existing.Add(locs...)
}

// AddLocations merges a whole location set for f.
func (s *Set) AddLocations(f Feature, locs *AddressSet) {
	existing, ok := s.features[f]
	if !ok {
		existing = NewAddressSet()
		s.features[f] = existing
	}
	existing.Union(locs)
}

// Merge folds every entry of other into s.
func (s *Set) Merge(other *Set) {
	if other == nil {
		return
	}
	for f, locs := range other.features {
		s.AddLocations(f, locs)
	}
}

// Locations returns where f was observed, if at all.
func (s *Set) Locations(f Feature) (*AddressSet, bool) {
	locs, ok := s.features[f]
	return locs, ok
}

func (s *Set) Has(f Feature) bool {
	_, ok := s.features[f]
	return ok
}

func (s *Set) Len() int {
	return len(s.features)
}

// Each visits every feature and its locations. Iteration order is not
// specified; callers that need determinism sort what they collect.
func (s *Set) Each(fn func(f Feature, locs *AddressSet)) {
	for f, locs := range s.features {
		fn(f, locs)
	}
}

// Clone deep-copies the set so augmentation cannot leak back into the
// underlying index.
func (s *Set) Clone() *Set {
	c := &Set{features: make(map[Feature]*AddressSet, len(s.features))}
	for f, locs := range s.features {
		c.features[f] = locs.Clone()
	}
	return c
}
