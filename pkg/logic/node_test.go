// scry/pkg/logic/node_test.go

package logic

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rgehrsitz/scry/pkg/features"
)

func TestWalkVisitsEveryNode(t *testing.T) {
	tree := &And{NodeID: 1, Children: []Node{
		&FeatureTest{NodeID: 2, Pattern: ExactPattern(features.APIFeature("VirtualAlloc"))},
		&Not{NodeID: 3, Child: &FeatureTest{NodeID: 4, Pattern: SubstringPattern("debug")}},
		&Subscope{NodeID: 5, Scope: features.ScopeBasicBlock, Child: &RuleRef{NodeID: 6, Name: "tight loop"}},
	}}

	var ids []int
	Walk(tree, func(n Node) { ids = append(ids, n.ID()) })
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, ids)
}

func TestWalkNil(t *testing.T) {
	visited := 0
	Walk(nil, func(Node) { visited++ })
	assert.Zero(t, visited)
}

func TestNodeString(t *testing.T) {
	some := &Some{NodeID: 1, Min: 2, Children: []Node{
		&FeatureTest{NodeID: 2, Pattern: ExactPattern(features.MnemonicFeature("xor"))},
		&RuleRef{NodeID: 3, Name: "decode loop"},
	}}
	assert.Equal(t, "some(2, mnemonic(xor), match(decode loop))", some.String())

	bounded := &Range{NodeID: 4, Pattern: ExactPattern(features.MnemonicFeature("xor")), Min: 2, Max: 4}
	assert.Equal(t, "count(mnemonic(xor), 2..4)", bounded.String())

	unbounded := &Range{NodeID: 5, Pattern: ExactPattern(features.MnemonicFeature("xor")), Min: 2, Max: Unbounded}
	assert.Equal(t, "count(mnemonic(xor), 2..)", unbounded.String())
}
