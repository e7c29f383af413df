// scry/pkg/logic/node.go

// Package logic holds the compiled form of a rule: a closed set of
// tagged-variant nodes. Trees are immutable once the compiler has built
// them; every node carries a compiler-assigned id used for memoization.
package logic

import (
	"fmt"
	"math"
	"strings"

	"rgehrsitz/scry/pkg/features"
)

// Unbounded marks a Range with no upper limit.
const Unbounded = math.MaxInt

// Node is one vertex of a compiled logic tree.
type Node interface {
	ID() int
	String() string
}

// And succeeds when every child succeeds.
type And struct {
	NodeID   int
	Children []Node
}

func (n *And) ID() int { return n.NodeID }

func (n *And) String() string {
	return fmt.Sprintf("and(%s)", joinNodes(n.Children))
}

// Or succeeds when at least one child succeeds.
type Or struct {
	NodeID   int
	Children []Node
}

func (n *Or) ID() int { return n.NodeID }

func (n *Or) String() string {
	return fmt.Sprintf("or(%s)", joinNodes(n.Children))
}

// Not succeeds when its child fails. Absence carries no evidence, so a
// Not never reports locations.
type Not struct {
	NodeID int
	Child  Node
}

func (n *Not) ID() int { return n.NodeID }

func (n *Not) String() string {
	return fmt.Sprintf("not(%s)", n.Child)
}

// Some succeeds when at least Min children succeed. Some(0, ...) is the
// lowering of "optional" and always succeeds.
type Some struct {
	NodeID   int
	Min      int
	Children []Node
}

func (n *Some) ID() int { return n.NodeID }

func (n *Some) String() string {
	return fmt.Sprintf("some(%d, %s)", n.Min, joinNodes(n.Children))
}

// Range succeeds when the number of locations matching Pattern falls in
// [Min, Max].
type Range struct {
	NodeID  int
	Pattern Pattern
	Min     int
	Max     int
}

func (n *Range) ID() int { return n.NodeID }

func (n *Range) String() string {
	if n.Max == Unbounded {
		return fmt.Sprintf("count(%s, %d..)", n.Pattern, n.Min)
	}
	return fmt.Sprintf("count(%s, %d..%d)", n.Pattern, n.Min, n.Max)
}

// Subscope succeeds when Child holds at one or more addresses of the
// named finer scope inside the current address's span.
type Subscope struct {
	NodeID int
	Scope  features.Scope
	Child  Node
}

func (n *Subscope) ID() int { return n.NodeID }

func (n *Subscope) String() string {
	return fmt.Sprintf("subscope(%s, %s)", n.Scope, n.Child)
}

// RuleRef succeeds when the named rule has already matched within the
// current span. References are resolved to graph edges at compile time;
// evaluation only tests the synthetic rule-matched feature.
type RuleRef struct {
	NodeID int
	Name   string
}

func (n *RuleRef) ID() int { return n.NodeID }

func (n *RuleRef) String() string {
	return fmt.Sprintf("match(%s)", n.Name)
}

// FeatureTest succeeds when a feature compatible with Pattern exists in
// the set under evaluation.
type FeatureTest struct {
	NodeID  int
	Pattern Pattern
}

func (n *FeatureTest) ID() int { return n.NodeID }

func (n *FeatureTest) String() string {
	return n.Pattern.String()
}

func joinNodes(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, ", ")
}

// Walk visits n and every descendant in depth-first order.
func Walk(n Node, visit func(Node)) {
	if n == nil {
		return
	}
	visit(n)
	switch v := n.(type) {
	case *And:
		for _, c := range v.Children {
			Walk(c, visit)
		}
	case *Or:
		for _, c := range v.Children {
			Walk(c, visit)
		}
	case *Not:
		Walk(v.Child, visit)
	case *Some:
		for _, c := range v.Children {
			Walk(c, visit)
		}
	case *Subscope:
		Walk(v.Child, visit)
	}
}
