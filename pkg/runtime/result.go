// scry/pkg/runtime/result.go

package runtime

import (
	"rgehrsitz/scry/pkg/features"
)

// MatchResult is the outcome of evaluating one rule (or node) at one
// address. Locations are the evidence addresses that made succeeding
// parts of the tree hold; failures may still carry partial evidence from
// succeeding children.
type MatchResult struct {
	Rule      string
	Node      int
	Address   features.Address
	Success   bool
	Locations *features.AddressSet
}

// ResultTree aggregates MatchResults under (scope, address), preserving
// rule evaluation order per address for deterministic rendering. It
// carries no business logic and is read-only to renderers.
type ResultTree struct {
	buckets map[features.Scope]map[features.Address][]*MatchResult
}

func NewResultTree() *ResultTree {
	return &ResultTree{
		buckets: make(map[features.Scope]map[features.Address][]*MatchResult),
	}
}

// Record appends one result under its scope and address.
func (t *ResultTree) Record(scope features.Scope, res *MatchResult) {
	bucket, ok := t.buckets[scope]
	if !ok {
		bucket = make(map[features.Address][]*MatchResult)
		t.buckets[scope] = bucket
	}
	bucket[res.Address] = append(bucket[res.Address], res)
}

// Results returns the results recorded at (scope, addr) in evaluation
// order.
func (t *ResultTree) Results(scope features.Scope, addr features.Address) []*MatchResult {
	return t.buckets[scope][addr]
}

// Addresses returns every address with results at scope, ascending.
func (t *ResultTree) Addresses(scope features.Scope) []features.Address {
	set := features.NewAddressSet()
	for addr := range t.buckets[scope] {
		set.Add(addr)
	}
	return set.Sorted()
}

// Successes returns the successful results at scope ordered by address
// then evaluation order.
func (t *ResultTree) Successes(scope features.Scope) []*MatchResult {
	var out []*MatchResult
	for _, addr := range t.Addresses(scope) {
		for _, res := range t.buckets[scope][addr] {
			if res.Success {
				out = append(out, res)
			}
		}
	}
	return out
}

// Each visits every result, coarsest scope first, addresses ascending,
// evaluation order within an address.
func (t *ResultTree) Each(visit func(scope features.Scope, res *MatchResult)) {
	for _, scope := range features.Scopes {
		for _, addr := range t.Addresses(scope) {
			for _, res := range t.buckets[scope][addr] {
				visit(scope, res)
			}
		}
	}
}
