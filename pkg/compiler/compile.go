// scry/pkg/compiler/compile.go

package compiler

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"rgehrsitz/scry/pkg/features"
	"rgehrsitz/scry/pkg/logging"
	"rgehrsitz/scry/pkg/logic"
)

// CompileError is a compile failure attributed to one rule. It never
// aborts compilation of the rest of the document.
type CompileError struct {
	Rule   string
	Reason string
	Err    error
}

func (e *CompileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rule %q: %s: %v", e.Rule, e.Reason, e.Err)
	}
	return fmt.Sprintf("rule %q: %s", e.Rule, e.Reason)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Rule is one compiled rule: an immutable logic tree plus its declared
// scope and passthrough metadata.
type Rule struct {
	Name  string
	Scope features.Scope
	Logic logic.Node
	Meta  map[string]interface{}
	// Deps lists the rule names referenced by match nodes, sorted.
	Deps []string
	// DeclIndex is the declaration position, used as the deterministic
	// tiebreak when topological ranks are equal.
	DeclIndex int
}

// CompileReport carries the compiled rules alongside the per-rule
// failures. Partial success is the normal mode.
type CompileReport struct {
	Rules  []*Rule
	Errors []*CompileError
}

// CompileAll lowers every rule definition in the document. A failure in
// one rule is recorded and the rest still compile.
func CompileAll(doc *RulesDoc) *CompileReport {
	report := &CompileReport{}
	for i, def := range doc.Rules {
		rule, err := CompileRule(def, i)
		if err != nil {
			var cerr *CompileError
			if !errors.As(err, &cerr) {
				cerr = &CompileError{Rule: def.Name, Reason: "compile failed", Err: err}
			}
			logging.Logger.Error().Err(cerr).Str("rule", cerr.Rule).Msg("Rule failed to compile")
			report.Errors = append(report.Errors, cerr)
			continue
		}
		report.Rules = append(report.Rules, rule)
	}
	logging.Logger.Info().
		Int("compiled", len(report.Rules)).
		Int("failed", len(report.Errors)).
		Msg("Compiled rule document")
	return report
}

// CompileRule validates and lowers one raw definition.
func CompileRule(def *RuleDef, declIndex int) (*Rule, error) {
	if def.Name == "" {
		return nil, &CompileError{Rule: "(unnamed)", Reason: "rule name is required"}
	}
	scope, err := features.ParseScope(def.Scope)
	if err != nil {
		return nil, &CompileError{Rule: def.Name, Reason: "invalid scope", Err: err}
	}
	if def.Logic == nil {
		return nil, &CompileError{Rule: def.Name, Reason: "missing logic"}
	}

	c := &compileCtx{rule: def.Name}
	root, err := c.compileNode(def.Logic, scope)
	if err != nil {
		var cerr *CompileError
		if errors.As(err, &cerr) {
			return nil, err
		}
		return nil, &CompileError{Rule: def.Name, Reason: "invalid logic", Err: err}
	}

	rule := &Rule{
		Name:      def.Name,
		Scope:     scope,
		Logic:     root,
		Meta:      def.Meta,
		Deps:      collectDeps(root),
		DeclIndex: declIndex,
	}
	logging.Logger.Debug().Str("rule", rule.Name).Stringer("scope", rule.Scope).Msg("Compiled rule")
	return rule, nil
}

// nodeIDs hands out process-wide unique node ids. Uniqueness across
// rules matters: the evaluator's memo is keyed by node id and one
// evaluator serves every rule in a pass.
var nodeIDs atomic.Int64

type compileCtx struct {
	rule string
}

func (c *compileCtx) id() int {
	return int(nodeIDs.Add(1))
}

func (c *compileCtx) errf(format string, args ...interface{}) error {
	return &CompileError{Rule: c.rule, Reason: fmt.Sprintf(format, args...)}
}

// leafScopes records at which effective scopes each feature kind may
// appear without an intervening subscope.
var leafScopes = map[features.Kind][]features.Scope{
	features.KindString:         {features.ScopeFile, features.ScopeFunction, features.ScopeBasicBlock, features.ScopeInstruction},
	features.KindBytes:          {features.ScopeFile, features.ScopeFunction, features.ScopeBasicBlock, features.ScopeInstruction},
	features.KindCharacteristic: {features.ScopeFile, features.ScopeFunction, features.ScopeBasicBlock, features.ScopeInstruction},
	features.KindMatchedRule:    {features.ScopeFile, features.ScopeFunction, features.ScopeBasicBlock, features.ScopeInstruction},
	features.KindNumber:         {features.ScopeFunction, features.ScopeBasicBlock, features.ScopeInstruction},
	features.KindAPI:            {features.ScopeFunction, features.ScopeBasicBlock, features.ScopeInstruction},
	features.KindMnemonic:       {features.ScopeFunction, features.ScopeBasicBlock, features.ScopeInstruction},
	features.KindOffset:         {features.ScopeFunction, features.ScopeBasicBlock, features.ScopeInstruction},
	features.KindBasicBlock:     {features.ScopeFunction},
}

func (c *compileCtx) checkLeafScope(kind features.Kind, eff features.Scope) error {
	for _, s := range leafScopes[kind] {
		if s == eff {
			return nil
		}
	}
	return c.errf("feature %s is not valid at %s scope", kind, eff)
}

func (c *compileCtx) compileChildren(defs []*NodeDef, eff features.Scope) ([]logic.Node, error) {
	children := make([]logic.Node, 0, len(defs))
	for _, d := range defs {
		child, err := c.compileNode(d, eff)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

func (c *compileCtx) compileNode(def *NodeDef, eff features.Scope) (logic.Node, error) {
	if err := validateNodeDef(def); err != nil {
		return nil, &CompileError{Rule: c.rule, Reason: "malformed logic node", Err: err}
	}

	switch {
	case len(def.And) > 0:
		children, err := c.compileChildren(def.And, eff)
		if err != nil {
			return nil, err
		}
		return &logic.And{NodeID: c.id(), Children: children}, nil

	case len(def.Or) > 0:
		children, err := c.compileChildren(def.Or, eff)
		if err != nil {
			return nil, err
		}
		return &logic.Or{NodeID: c.id(), Children: children}, nil

	case def.Not != nil:
		child, err := c.compileNode(def.Not, eff)
		if err != nil {
			return nil, err
		}
		return &logic.Not{NodeID: c.id(), Child: child}, nil

	case len(def.Optional) > 0:
		// optional is sugar for a threshold of zero: it always succeeds
		// and contributes only evidence.
		children, err := c.compileChildren(def.Optional, eff)
		if err != nil {
			return nil, err
		}
		return &logic.Some{NodeID: c.id(), Min: 0, Children: children}, nil

	case def.Some != nil:
		if def.Some.Min < 0 {
			return nil, c.errf("some requires a non-negative min, got %d", def.Some.Min)
		}
		if len(def.Some.Of) == 0 {
			return nil, c.errf("some requires at least one child")
		}
		children, err := c.compileChildren(def.Some.Of, eff)
		if err != nil {
			return nil, err
		}
		return &logic.Some{NodeID: c.id(), Min: def.Some.Min, Children: children}, nil

	case def.Count != nil:
		return c.compileCount(def.Count, eff)

	case def.Subscope != nil:
		return c.compileSubscope(def.Subscope, eff)

	case def.Match != "":
		return &logic.RuleRef{NodeID: c.id(), Name: def.Match}, nil

	default:
		pattern, kind, err := c.compileLeaf(def)
		if err != nil {
			return nil, err
		}
		if err := c.checkLeafScope(kind, eff); err != nil {
			return nil, err
		}
		return &logic.FeatureTest{NodeID: c.id(), Pattern: pattern}, nil
	}
}

func (c *compileCtx) compileCount(def *CountDef, eff features.Scope) (logic.Node, error) {
	if def.Of == nil {
		return nil, c.errf("count requires an inner feature")
	}
	if !isLeaf(def.Of) {
		return nil, c.errf("count operand must be a single feature")
	}
	if def.Min < 0 {
		return nil, c.errf("count requires a non-negative min, got %d", def.Min)
	}
	max := logic.Unbounded
	if def.Max != nil {
		max = *def.Max
		if max < def.Min {
			return nil, c.errf("count min %d exceeds max %d", def.Min, max)
		}
	}
	pattern, kind, err := c.compileLeaf(def.Of)
	if err != nil {
		return nil, err
	}
	if err := c.checkLeafScope(kind, eff); err != nil {
		return nil, err
	}
	return &logic.Range{NodeID: c.id(), Pattern: pattern, Min: def.Min, Max: max}, nil
}

func (c *compileCtx) compileSubscope(def *SubscopeDef, eff features.Scope) (logic.Node, error) {
	target, err := features.ParseScope(def.Scope)
	if err != nil {
		return nil, &CompileError{Rule: c.rule, Reason: "invalid subscope", Err: err}
	}
	if eff == features.ScopeFile {
		return nil, c.errf("file-scope rules reference finer behavior via match, not subscope")
	}
	if !target.FinerThan(eff) {
		return nil, c.errf("subscope %s is not finer than enclosing %s scope", target, eff)
	}
	if def.Node == nil {
		return nil, c.errf("subscope requires a child node")
	}
	child, err := c.compileNode(def.Node, target)
	if err != nil {
		return nil, err
	}
	return &logic.Subscope{NodeID: c.id(), Scope: target, Child: child}, nil
}

// compileLeaf lowers a single-feature definition into a pattern and
// reports the feature kind for scope checking.
func (c *compileCtx) compileLeaf(def *NodeDef) (logic.Pattern, features.Kind, error) {
	switch {
	case def.API != "":
		return logic.ExactPattern(features.APIFeature(def.API)), features.KindAPI, nil
	case def.String != "":
		return logic.ExactPattern(features.StringFeature(def.String)), features.KindString, nil
	case def.Substring != "":
		return logic.SubstringPattern(def.Substring), features.KindString, nil
	case def.Bytes != "":
		b, err := parseHexBytes(def.Bytes)
		if err != nil {
			return logic.Pattern{}, "", c.errf("invalid bytes %q: %v", def.Bytes, err)
		}
		return logic.ExactPattern(features.BytesFeature(b)), features.KindBytes, nil
	case def.BytesPrefix != "":
		b, err := parseHexBytes(def.BytesPrefix)
		if err != nil {
			return logic.Pattern{}, "", c.errf("invalid bytes prefix %q: %v", def.BytesPrefix, err)
		}
		return logic.BytesPrefixPattern(b), features.KindBytes, nil
	case def.Number != nil:
		if def.Number.Value != nil {
			return logic.ExactPattern(features.NumberFeature(*def.Number.Value)), features.KindNumber, nil
		}
		min, max := numberBounds(def.Number)
		return logic.NumberRangePattern(min, max), features.KindNumber, nil
	case def.Mnemonic != "":
		return logic.ExactPattern(features.MnemonicFeature(def.Mnemonic)), features.KindMnemonic, nil
	case def.Offset != nil:
		if def.Offset.Value == nil {
			return logic.Pattern{}, "", c.errf("offset requires an exact value")
		}
		return logic.ExactPattern(features.OffsetFeature(*def.Offset.Value)), features.KindOffset, nil
	case def.Characteristic != "":
		return logic.ExactPattern(features.CharacteristicFeature(def.Characteristic)), features.KindCharacteristic, nil
	case def.BasicBlock:
		return logic.ExactPattern(features.BasicBlockFeature()), features.KindBasicBlock, nil
	default:
		return logic.Pattern{}, "", c.errf("unknown feature definition")
	}
}

func numberBounds(n *NumberDef) (uint64, uint64) {
	min := uint64(0)
	max := ^uint64(0)
	if n.Min != nil {
		min = *n.Min
	}
	if n.Max != nil {
		max = *n.Max
	}
	return min, max
}

func parseHexBytes(s string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	return hex.DecodeString(strings.ToLower(cleaned))
}

func collectDeps(root logic.Node) []string {
	seen := make(map[string]bool)
	logic.Walk(root, func(n logic.Node) {
		if ref, ok := n.(*logic.RuleRef); ok {
			seen[ref.Name] = true
		}
	})
	deps := make([]string, 0, len(seen))
	for name := range seen {
		deps = append(deps, name)
	}
	sort.Strings(deps)
	return deps
}
