// scry/pkg/runtime/engine.go

package runtime

import (
	"fmt"

	"rgehrsitz/scry/pkg/features"
	"rgehrsitz/scry/pkg/logging"
	"rgehrsitz/scry/pkg/logic"
)

// setKey identifies one feature-set context within a pass.
type setKey struct {
	Scope features.Scope
	Addr  features.Address
}

// Evaluator evaluates compiled logic trees against the feature sets of
// one pass. It consults the pipeline's augmented working sets first and
// falls back to the raw index, and memoizes node results per
// (node, scope, address) for the lifetime of the pass only.
type Evaluator struct {
	index   *features.Index
	working map[setKey]*features.Set
	memo    map[memoKey]*MatchResult
	stats   *Stats
}

type memoKey struct {
	Node  int
	Scope features.Scope
	Addr  features.Address
}

func NewEvaluator(index *features.Index, working map[setKey]*features.Set, stats *Stats) *Evaluator {
	return &Evaluator{
		index:   index,
		working: working,
		memo:    make(map[memoKey]*MatchResult),
		stats:   stats,
	}
}

func (e *Evaluator) featureSet(scope features.Scope, addr features.Address) *features.Set {
	if set, ok := e.working[setKey{Scope: scope, Addr: addr}]; ok {
		return set
	}
	return e.index.FeatureSet(scope, addr)
}

// Evaluate computes the MatchResult of node at (scope, addr). Every
// child is evaluated — there is no short-circuiting — so that evidence
// from each succeeding child is collected even when the overall outcome
// is already decided.
func (e *Evaluator) Evaluate(node logic.Node, scope features.Scope, addr features.Address) (*MatchResult, error) {
	if node == nil {
		return nil, logging.NewError(logging.ErrorTypeMatch, "nil logic node", fmt.Errorf("evaluation reached a nil node at %s", addr), nil)
	}

	key := memoKey{Node: node.ID(), Scope: scope, Addr: addr}
	if cached, ok := e.memo[key]; ok {
		return cached, nil
	}

	res, err := e.evaluate(node, scope, addr)
	if err != nil {
		return nil, err
	}
	e.memo[key] = res
	if e.stats != nil {
		e.stats.nodeEvaluated()
	}
	return res, nil
}

func (e *Evaluator) evaluate(node logic.Node, scope features.Scope, addr features.Address) (*MatchResult, error) {
	switch n := node.(type) {
	case *logic.FeatureTest:
		locs, ok := n.Pattern.FindIn(e.featureSet(scope, addr))
		if !ok {
			locs = features.NewAddressSet()
		}
		return &MatchResult{Node: n.NodeID, Address: addr, Success: ok, Locations: locs}, nil

	case *logic.And:
		return e.evaluateThreshold(n.NodeID, n.Children, len(n.Children), scope, addr)

	case *logic.Or:
		return e.evaluateThreshold(n.NodeID, n.Children, 1, scope, addr)

	case *logic.Some:
		return e.evaluateThreshold(n.NodeID, n.Children, n.Min, scope, addr)

	case *logic.Not:
		child, err := e.Evaluate(n.Child, scope, addr)
		if err != nil {
			return nil, err
		}
		// Absence has no evidence: a Not never reports locations.
		return &MatchResult{Node: n.NodeID, Address: addr, Success: !child.Success, Locations: features.NewAddressSet()}, nil

	case *logic.Range:
		locs, _ := n.Pattern.FindIn(e.featureSet(scope, addr))
		count := locs.Len()
		ok := count >= n.Min && count <= n.Max
		return &MatchResult{Node: n.NodeID, Address: addr, Success: ok, Locations: locs}, nil

	case *logic.Subscope:
		return e.evaluateSubscope(n, scope, addr)

	case *logic.RuleRef:
		set := e.featureSet(scope, addr)
		locs, ok := set.Locations(features.MatchedRuleFeature(n.Name))
		evidence := features.NewAddressSet()
		if ok {
			evidence = locs.Clone()
		}
		return &MatchResult{Node: n.NodeID, Address: addr, Success: ok, Locations: evidence}, nil

	default:
		return nil, logging.NewError(logging.ErrorTypeMatch, "unknown logic node",
			fmt.Errorf("unexpected node type %T", node), map[string]interface{}{"address": addr.String()})
	}
}

// evaluateThreshold covers And (min = len), Or (min = 1) and Some.
// Locations are the union of succeeding children's locations, collected
// for successes and failures alike.
func (e *Evaluator) evaluateThreshold(id int, children []logic.Node, min int, scope features.Scope, addr features.Address) (*MatchResult, error) {
	succeeded := 0
	evidence := features.NewAddressSet()
	for _, child := range children {
		res, err := e.Evaluate(child, scope, addr)
		if err != nil {
			return nil, err
		}
		if res.Success {
			succeeded++
			evidence.Union(res.Locations)
		}
	}
	return &MatchResult{Node: id, Address: addr, Success: succeeded >= min, Locations: evidence}, nil
}

// evaluateSubscope checks the child at every candidate address of the
// finer scope within addr's span. Evidence is the set of descendant
// addresses where the child held, never the parent address.
func (e *Evaluator) evaluateSubscope(n *logic.Subscope, scope features.Scope, addr features.Address) (*MatchResult, error) {
	var candidates []features.Address
	switch {
	case scope == features.ScopeFunction && n.Scope == features.ScopeBasicBlock:
		candidates = e.index.BlocksIn(addr)
	case scope == features.ScopeFunction && n.Scope == features.ScopeInstruction:
		candidates = e.index.InstructionsInFunction(addr)
	case scope == features.ScopeBasicBlock && n.Scope == features.ScopeInstruction:
		candidates = e.index.InstructionsIn(addr)
	default:
		return nil, logging.NewError(logging.ErrorTypeMatch, "invalid subscope",
			fmt.Errorf("subscope %s under %s scope", n.Scope, scope), nil)
	}

	matched := features.NewAddressSet()
	for _, candidate := range candidates {
		res, err := e.Evaluate(n.Child, n.Scope, candidate)
		if err != nil {
			return nil, err
		}
		if res.Success {
			matched.Add(candidate)
		}
	}
	return &MatchResult{Node: n.NodeID, Address: addr, Success: matched.Len() > 0, Locations: matched}, nil
}
