// scry/pkg/features/index.go

package features

import "sort"

type indexKey struct {
	Scope Scope
	Addr  Address
}

// Index is the engine's view of one analyzed file: the complete feature
// set at every (scope, address) pair plus the function / basic block /
// instruction layout. It is populated by the extraction collaborator and
// read-only once matching begins.
type Index struct {
	fileAddr  Address
	functions []Address
	blocks    map[Address][]Address
	insns     map[Address][]Address
	sets      map[indexKey]*Set
}

func NewIndex() *Index {
	return &Index{
		fileAddr: NoAddress(),
		blocks:   make(map[Address][]Address),
		insns:    make(map[Address][]Address),
		sets:     make(map[indexKey]*Set),
	}
}

// FileAddress is the address under which file-scope features and results
// are keyed.
func (ix *Index) FileAddress() Address {
	return ix.fileAddr
}

func insertSorted(addrs []Address, a Address) []Address {
	i := sort.Search(len(addrs), func(i int) bool { return !addrs[i].Less(a) })
	if i < len(addrs) && addrs[i] == a {
		return addrs
	}
	addrs = append(addrs, Address{})
	copy(addrs[i+1:], addrs[i:])
	addrs[i] = a
	return addrs
}

func (ix *Index) AddFunction(fn Address) {
	ix.functions = insertSorted(ix.functions, fn)
	if _, ok := ix.blocks[fn]; !ok {
		ix.blocks[fn] = nil
	}
}

func (ix *Index) AddBasicBlock(fn, bb Address) {
	ix.AddFunction(fn)
	ix.blocks[fn] = insertSorted(ix.blocks[fn], bb)
	if _, ok := ix.insns[bb]; !ok {
		ix.insns[bb] = nil
	}
}

func (ix *Index) AddInstruction(bb, insn Address) {
	ix.insns[bb] = insertSorted(ix.insns[bb], insn)
}

// AddFeature records f at (scope, addr). When no explicit locations are
// given the feature is located at addr itself.
func (ix *Index) AddFeature(scope Scope, addr Address, f Feature, locs ...Address) {
	key := indexKey{Scope: scope, Addr: addr}
	set, ok := ix.sets[key]
	if !ok {
		set = NewSet()
		ix.sets[key] = set
	}
	if len(locs) == 0 {
		locs = []Address{addr}
	}
	set.Add(f, locs...)
}

// FeatureSet returns the feature set at (scope, addr). Missing entries
// yield an empty set, matching the degraded-extraction contract.
func (ix *Index) FeatureSet(scope Scope, addr Address) *Set {
	if set, ok := ix.sets[indexKey{Scope: scope, Addr: addr}]; ok {
		return set
	}
	return NewSet()
}

// Functions returns every function address in ascending order.
func (ix *Index) Functions() []Address {
	return ix.functions
}

// BlocksIn returns the basic blocks of fn in ascending order.
func (ix *Index) BlocksIn(fn Address) []Address {
	return ix.blocks[fn]
}

// InstructionsIn returns the instructions of bb in ascending order.
func (ix *Index) InstructionsIn(bb Address) []Address {
	return ix.insns[bb]
}

// InstructionsInFunction flattens all instruction addresses within fn,
// in ascending block then instruction order.
func (ix *Index) InstructionsInFunction(fn Address) []Address {
	var out []Address
	for _, bb := range ix.blocks[fn] {
		out = append(out, ix.insns[bb]...)
	}
	return out
}
