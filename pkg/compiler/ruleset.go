// scry/pkg/compiler/ruleset.go

package compiler

import (
	"fmt"
	"sort"
	"strings"

	"rgehrsitz/scry/pkg/features"
	"rgehrsitz/scry/pkg/logging"
)

// RuleSet is the compiled rule collection: unique names, an acyclic
// dependency graph over match references, and a topological evaluation
// order bucketed by scope. It is immutable once built and passed by
// value of reference to every pipeline stage; there is no global
// registry.
type RuleSet struct {
	rules   map[string]*Rule
	order   []*Rule
	byScope map[features.Scope][]*Rule
}

// NewRuleSet builds a rule set from compiled rules. Duplicate names and
// cyclic dependency components are rejected with CompileErrors; the
// acyclic remainder is still usable. For each cycle, the member declared
// last is rejected, which is enough to break the component; survivors
// whose references now dangle simply never see the synthetic
// rule-matched feature at evaluation time.
func NewRuleSet(rules []*Rule) (*RuleSet, []*CompileError) {
	var errs []*CompileError

	byName := make(map[string]*Rule, len(rules))
	var kept []*Rule
	for _, r := range rules {
		if _, dup := byName[r.Name]; dup {
			errs = append(errs, &CompileError{Rule: r.Name, Reason: "duplicate rule name"})
			continue
		}
		byName[r.Name] = r
		kept = append(kept, r)
	}

	for _, r := range kept {
		for _, dep := range r.Deps {
			if _, ok := byName[dep]; !ok {
				logging.Logger.Warn().
					Str("rule", r.Name).
					Str("reference", dep).
					Msg("Rule references an unknown or rejected rule; the reference can never match")
			}
		}
	}

	// Break cycles one rejection at a time so the rest of each component
	// stays usable.
	for {
		cycle := findCycle(kept, byName)
		if cycle == nil {
			break
		}
		reject := cycle[0]
		for _, r := range cycle[1:] {
			if r.DeclIndex > reject.DeclIndex {
				reject = r
			}
		}
		path := cyclePath(cycle)
		errs = append(errs, &CompileError{
			Rule:   reject.Name,
			Reason: fmt.Sprintf("cyclic rule dependency: %s", path),
		})
		logging.Logger.Error().
			Str("rule", reject.Name).
			Str("cycle", path).
			Msg("Rejected rule participating in a dependency cycle")
		delete(byName, reject.Name)
		filtered := kept[:0]
		for _, r := range kept {
			if r.Name != reject.Name {
				filtered = append(filtered, r)
			}
		}
		kept = filtered
	}

	set := &RuleSet{
		rules:   byName,
		order:   topoOrder(kept, byName),
		byScope: make(map[features.Scope][]*Rule),
	}
	for _, r := range set.order {
		set.byScope[r.Scope] = append(set.byScope[r.Scope], r)
	}

	logging.Logger.Info().
		Int("rules", len(set.order)).
		Int("rejected", len(errs)).
		Msg("Built rule set")
	return set, errs
}

// Get looks a rule up by name.
func (s *RuleSet) Get(name string) (*Rule, bool) {
	r, ok := s.rules[name]
	return r, ok
}

// RulesFor returns the rules declared at scope, in evaluation order.
func (s *RuleSet) RulesFor(scope features.Scope) []*Rule {
	return s.byScope[scope]
}

// Order returns every rule in global topological evaluation order, with
// declaration order as the deterministic tiebreak.
func (s *RuleSet) Order() []*Rule {
	return s.order
}

func (s *RuleSet) Len() int {
	return len(s.order)
}

// findCycle runs Tarjan's strongly-connected-components algorithm over
// the dependency graph and returns the members of one cyclic component,
// or nil when the graph is acyclic.
func findCycle(rules []*Rule, byName map[string]*Rule) []*Rule {
	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var cycle []*Rule

	var strongconnect func(r *Rule)
	strongconnect = func(r *Rule) {
		indices[r.Name] = index
		lowlink[r.Name] = index
		index++
		stack = append(stack, r.Name)
		onStack[r.Name] = true

		for _, dep := range r.Deps {
			target, ok := byName[dep]
			if !ok {
				continue
			}
			if _, visited := indices[dep]; !visited {
				strongconnect(target)
				if lowlink[dep] < lowlink[r.Name] {
					lowlink[r.Name] = lowlink[dep]
				}
			} else if onStack[dep] {
				if indices[dep] < lowlink[r.Name] {
					lowlink[r.Name] = indices[dep]
				}
			}
		}

		if lowlink[r.Name] == indices[r.Name] {
			var comp []string
			for {
				n := len(stack) - 1
				name := stack[n]
				stack = stack[:n]
				onStack[name] = false
				comp = append(comp, name)
				if name == r.Name {
					break
				}
			}
			if cycle == nil && (len(comp) > 1 || selfLoop(byName[comp[0]])) {
				for _, name := range comp {
					cycle = append(cycle, byName[name])
				}
			}
		}
	}

	for _, r := range rules {
		if _, visited := indices[r.Name]; !visited {
			strongconnect(r)
		}
		if cycle != nil {
			return cycle
		}
	}
	return nil
}

func selfLoop(r *Rule) bool {
	for _, dep := range r.Deps {
		if dep == r.Name {
			return true
		}
	}
	return false
}

func cyclePath(cycle []*Rule) string {
	names := make([]string, 0, len(cycle)+1)
	ordered := append([]*Rule(nil), cycle...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].DeclIndex < ordered[j].DeclIndex })
	for _, r := range ordered {
		names = append(names, r.Name)
	}
	names = append(names, ordered[0].Name)
	return strings.Join(names, " -> ")
}

// topoOrder produces a dependency-respecting evaluation order using
// Kahn's algorithm, breaking ties by declaration order.
func topoOrder(rules []*Rule, byName map[string]*Rule) []*Rule {
	indegree := make(map[string]int, len(rules))
	dependents := make(map[string][]string)
	for _, r := range rules {
		indegree[r.Name] += 0
		for _, dep := range r.Deps {
			if _, ok := byName[dep]; !ok || dep == r.Name {
				continue
			}
			indegree[r.Name]++
			dependents[dep] = append(dependents[dep], r.Name)
		}
	}

	ready := make([]*Rule, 0, len(rules))
	for _, r := range rules {
		if indegree[r.Name] == 0 {
			ready = append(ready, r)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].DeclIndex < ready[j].DeclIndex })

	var order []*Rule
	for len(ready) > 0 {
		r := ready[0]
		ready = ready[1:]
		order = append(order, r)
		released := false
		for _, depName := range dependents[r.Name] {
			indegree[depName]--
			if indegree[depName] == 0 {
				ready = append(ready, byName[depName])
				released = true
			}
		}
		if released {
			sort.Slice(ready, func(i, j int) bool { return ready[i].DeclIndex < ready[j].DeclIndex })
		}
	}
	return order
}
