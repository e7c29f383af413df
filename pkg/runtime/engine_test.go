// scry/pkg/runtime/engine_test.go

package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rgehrsitz/scry/pkg/compiler"
	"rgehrsitz/scry/pkg/features"
)

// compileRuleSet compiles a YAML rule document and fails the test on
// any compile or set-building error.
func compileRuleSet(t *testing.T, yamlSrc string) *compiler.RuleSet {
	t.Helper()
	doc, err := compiler.Parse([]byte(yamlSrc))
	require.NoError(t, err)
	report := compiler.CompileAll(doc)
	require.Empty(t, report.Errors)
	set, errs := compiler.NewRuleSet(report.Rules)
	require.Empty(t, errs)
	return set
}

func mustRule(t *testing.T, set *compiler.RuleSet, name string) *compiler.Rule {
	t.Helper()
	rule, ok := set.Get(name)
	require.True(t, ok, "rule %q not in set", name)
	return rule
}

// A failing conjunction still reports the evidence of the children
// that did succeed.
func TestAndFailureKeepsPartialEvidence(t *testing.T) {
	set := compileRuleSet(t, `
rules:
  - name: alloc then copy shellcode
    scope: instruction
    logic:
      and:
        - api: VirtualAlloc
        - string: shellcode
`)

	ix := features.NewIndex()
	insn := features.AbsoluteAddress(0x10)
	ix.AddFeature(features.ScopeInstruction, insn, features.APIFeature("VirtualAlloc"))

	ev := NewEvaluator(ix, nil, nil)
	res, err := ev.Evaluate(mustRule(t, set, "alloc then copy shellcode").Logic, features.ScopeInstruction, insn)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, []features.Address{insn}, res.Locations.Sorted())
}

func TestAndSuccessUnionsEvidence(t *testing.T) {
	set := compileRuleSet(t, `
rules:
  - name: alloc and protect
    scope: function
    logic:
      and:
        - api: VirtualAlloc
        - api: VirtualProtect
`)

	ix := features.NewIndex()
	fn := features.AbsoluteAddress(0x400)
	ix.AddFeature(features.ScopeFunction, fn, features.APIFeature("VirtualAlloc"), features.AbsoluteAddress(0x410))
	ix.AddFeature(features.ScopeFunction, fn, features.APIFeature("VirtualProtect"), features.AbsoluteAddress(0x420))

	ev := NewEvaluator(ix, nil, nil)
	res, err := ev.Evaluate(mustRule(t, set, "alloc and protect").Logic, features.ScopeFunction, fn)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, []features.Address{
		features.AbsoluteAddress(0x410),
		features.AbsoluteAddress(0x420),
	}, res.Locations.Sorted())
}

func TestCountWithinBounds(t *testing.T) {
	set := compileRuleSet(t, `
rules:
  - name: xor heavy block
    scope: basic block
    logic:
      count:
        of:
          mnemonic: xor
        min: 2
        max: 4
`)

	ix := features.NewIndex()
	bb := features.AbsoluteAddress(0x20)
	ix.AddFeature(features.ScopeBasicBlock, bb, features.MnemonicFeature("xor"),
		features.AbsoluteAddress(0x20), features.AbsoluteAddress(0x24), features.AbsoluteAddress(0x28))

	ev := NewEvaluator(ix, nil, nil)
	rule := mustRule(t, set, "xor heavy block")

	res, err := ev.Evaluate(rule.Logic, features.ScopeBasicBlock, bb)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Locations.Len())

	// A block with a single xor stays under the minimum. The counted
	// occurrence is still reported as evidence of the failure.
	sparse := features.AbsoluteAddress(0x40)
	ix.AddFeature(features.ScopeBasicBlock, sparse, features.MnemonicFeature("xor"), features.AbsoluteAddress(0x40))
	res, err = ev.Evaluate(rule.Logic, features.ScopeBasicBlock, sparse)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Locations.Len())
}

func TestNotNeverReportsLocations(t *testing.T) {
	set := compileRuleSet(t, `
rules:
  - name: no debugger checks
    scope: function
    logic:
      not:
        api: IsDebuggerPresent
`)

	ix := features.NewIndex()
	clean := features.AbsoluteAddress(0x400)
	dirty := features.AbsoluteAddress(0x500)
	ix.AddFeature(features.ScopeFunction, dirty, features.APIFeature("IsDebuggerPresent"))

	ev := NewEvaluator(ix, nil, nil)
	rule := mustRule(t, set, "no debugger checks")

	res, err := ev.Evaluate(rule.Logic, features.ScopeFunction, clean)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, res.Locations.Len())

	res, err = ev.Evaluate(rule.Logic, features.ScopeFunction, dirty)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Zero(t, res.Locations.Len())
}

// not(and(a, b)) and or(not(a), not(b)) agree on every combination of
// feature presence.
func TestNegationDistributes(t *testing.T) {
	set := compileRuleSet(t, `
rules:
  - name: negated conjunction
    scope: instruction
    logic:
      not:
        and:
          - string: alpha
          - string: beta
  - name: disjoined negations
    scope: instruction
    logic:
      or:
        - not:
            string: alpha
        - not:
            string: beta
`)

	ix := features.NewIndex()
	cases := []struct {
		addr  features.Address
		alpha bool
		beta  bool
	}{
		{features.AbsoluteAddress(0x10), false, false},
		{features.AbsoluteAddress(0x20), true, false},
		{features.AbsoluteAddress(0x30), false, true},
		{features.AbsoluteAddress(0x40), true, true},
	}
	for _, c := range cases {
		if c.alpha {
			ix.AddFeature(features.ScopeInstruction, c.addr, features.StringFeature("alpha"))
		}
		if c.beta {
			ix.AddFeature(features.ScopeInstruction, c.addr, features.StringFeature("beta"))
		}
	}

	ev := NewEvaluator(ix, nil, nil)
	negated := mustRule(t, set, "negated conjunction")
	disjoined := mustRule(t, set, "disjoined negations")

	for _, c := range cases {
		a, err := ev.Evaluate(negated.Logic, features.ScopeInstruction, c.addr)
		require.NoError(t, err)
		b, err := ev.Evaluate(disjoined.Logic, features.ScopeInstruction, c.addr)
		require.NoError(t, err)
		assert.Equal(t, a.Success, b.Success, "disagreement at %s", c.addr)
		assert.Equal(t, !(c.alpha && c.beta), a.Success)
	}
}

// Lowering the threshold can only widen the set of successes.
func TestSomeThresholdMonotonicity(t *testing.T) {
	set := compileRuleSet(t, `
rules:
  - name: at least one
    scope: function
    logic:
      some:
        min: 1
        of:
          - string: alpha
          - string: beta
          - string: gamma
  - name: at least two
    scope: function
    logic:
      some:
        min: 2
        of:
          - string: alpha
          - string: beta
          - string: gamma
  - name: all three
    scope: function
    logic:
      some:
        min: 3
        of:
          - string: alpha
          - string: beta
          - string: gamma
`)

	ix := features.NewIndex()
	fn := features.AbsoluteAddress(0x400)
	ix.AddFeature(features.ScopeFunction, fn, features.StringFeature("alpha"))
	ix.AddFeature(features.ScopeFunction, fn, features.StringFeature("gamma"))

	ev := NewEvaluator(ix, nil, nil)
	for name, want := range map[string]bool{
		"at least one": true,
		"at least two": true,
		"all three":    false,
	} {
		res, err := ev.Evaluate(mustRule(t, set, name).Logic, features.ScopeFunction, fn)
		require.NoError(t, err)
		assert.Equal(t, want, res.Success, "rule %q", name)
	}
}

func TestOptionalNeverFails(t *testing.T) {
	set := compileRuleSet(t, `
rules:
  - name: optional evidence only
    scope: function
    logic:
      optional:
        - api: GetProcAddress
`)

	ix := features.NewIndex()
	empty := features.AbsoluteAddress(0x400)

	ev := NewEvaluator(ix, nil, nil)
	res, err := ev.Evaluate(mustRule(t, set, "optional evidence only").Logic, features.ScopeFunction, empty)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, res.Locations.Len())
}

// Subscope evidence names the descendant addresses where the child
// held, never the enclosing address.
func TestSubscopeEvidenceIsDescendants(t *testing.T) {
	set := compileRuleSet(t, `
rules:
  - name: thread started somewhere inside
    scope: function
    logic:
      subscope:
        scope: basic block
        node:
          api: CreateThread
`)

	ix := features.NewIndex()
	fn := features.AbsoluteAddress(0x400)
	bb1 := features.AbsoluteAddress(0x400)
	bb2 := features.AbsoluteAddress(0x420)
	ix.AddBasicBlock(fn, bb1)
	ix.AddBasicBlock(fn, bb2)
	ix.AddFeature(features.ScopeBasicBlock, bb2, features.APIFeature("CreateThread"), features.AbsoluteAddress(0x424))

	ev := NewEvaluator(ix, nil, nil)
	res, err := ev.Evaluate(mustRule(t, set, "thread started somewhere inside").Logic, features.ScopeFunction, fn)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, []features.Address{bb2}, res.Locations.Sorted())
}

func TestRuleRefReadsWorkingSet(t *testing.T) {
	set := compileRuleSet(t, `
rules:
  - name: depends on decode loop
    scope: function
    logic:
      match: decode loop
`)

	fn := features.AbsoluteAddress(0x400)
	fnSet := features.NewSet()
	fnSet.Add(features.MatchedRuleFeature("decode loop"), features.AbsoluteAddress(0x408))
	working := map[setKey]*features.Set{
		{Scope: features.ScopeFunction, Addr: fn}: fnSet,
	}

	ev := NewEvaluator(features.NewIndex(), working, nil)
	res, err := ev.Evaluate(mustRule(t, set, "depends on decode loop").Logic, features.ScopeFunction, fn)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, []features.Address{features.AbsoluteAddress(0x408)}, res.Locations.Sorted())
}

func TestEvaluateNilNode(t *testing.T) {
	ev := NewEvaluator(features.NewIndex(), nil, nil)
	_, err := ev.Evaluate(nil, features.ScopeFile, features.NoAddress())
	assert.Error(t, err)
}

// The memo must key on scope as well as address: the same address can
// denote a function and its entry block at once.
func TestMemoDistinguishesScopes(t *testing.T) {
	set := compileRuleSet(t, `
rules:
  - name: calls into kernel32
    scope: function
    logic:
      api: LoadLibraryA
`)

	ix := features.NewIndex()
	shared := features.AbsoluteAddress(0x400)
	ix.AddFeature(features.ScopeFunction, shared, features.APIFeature("LoadLibraryA"))
	// Nothing recorded for the basic block at the same address.

	ev := NewEvaluator(ix, nil, nil)
	rule := mustRule(t, set, "calls into kernel32")

	asFn, err := ev.Evaluate(rule.Logic, features.ScopeFunction, shared)
	require.NoError(t, err)
	asBlock, err := ev.Evaluate(rule.Logic, features.ScopeBasicBlock, shared)
	require.NoError(t, err)

	assert.True(t, asFn.Success)
	assert.False(t, asBlock.Success)
}
