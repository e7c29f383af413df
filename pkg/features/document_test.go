// scry/pkg/features/document_test.go

package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDocument = `
{
	"file": {
		"features": [
			{"type": "string", "value": "This program cannot be run in DOS mode"}
		]
	},
	"functions": [
		{
			"address": 4198400,
			"features": [
				{"type": "characteristic", "value": "recursive call"}
			],
			"blocks": [
				{
					"address": 4198400,
					"instructions": [
						{
							"address": 4198400,
							"features": [
								{"type": "api", "value": "VirtualAlloc"},
								{"type": "number", "number": 64}
							]
						},
						{
							"address": 4198405,
							"features": [
								{"type": "mnemonic", "value": "xor"}
							]
						}
					]
				},
				{
					"address": 4198416,
					"instructions": [
						{
							"address": 4198416,
							"features": [
								{"type": "mnemonic", "value": "ret"}
							]
						}
					]
				}
			]
		}
	]
}
`

func TestParseDocumentRejectsInvalidJSON(t *testing.T) {
	_, err := ParseDocument([]byte(`{"file": [`))
	assert.Error(t, err)
}

func TestBuildIndexLayout(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDocument))
	require.NoError(t, err)

	ix, err := doc.BuildIndex()
	require.NoError(t, err)

	fn := AbsoluteAddress(4198400)
	assert.Equal(t, []Address{fn}, ix.Functions())
	assert.Len(t, ix.BlocksIn(fn), 2)
	assert.Len(t, ix.InstructionsInFunction(fn), 3)
}

func TestBuildIndexFileFeatures(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDocument))
	require.NoError(t, err)
	ix, err := doc.BuildIndex()
	require.NoError(t, err)

	set := ix.FeatureSet(ScopeFile, ix.FileAddress())
	assert.True(t, set.Has(StringFeature("This program cannot be run in DOS mode")))
}

// Instruction features accumulate into the enclosing block and function
// sets with their original instruction locations preserved.
func TestBuildIndexAccumulatesUpward(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDocument))
	require.NoError(t, err)
	ix, err := doc.BuildIndex()
	require.NoError(t, err)

	fn := AbsoluteAddress(4198400)
	bb := AbsoluteAddress(4198400)
	insn := AbsoluteAddress(4198400)

	bbSet := ix.FeatureSet(ScopeBasicBlock, bb)
	locs, ok := bbSet.Locations(APIFeature("VirtualAlloc"))
	assert.True(t, ok)
	assert.True(t, locs.Contains(insn))

	fnSet := ix.FeatureSet(ScopeFunction, fn)
	locs, ok = fnSet.Locations(APIFeature("VirtualAlloc"))
	assert.True(t, ok)
	assert.True(t, locs.Contains(insn))
	assert.True(t, fnSet.Has(MnemonicFeature("ret")))
	assert.True(t, fnSet.Has(CharacteristicFeature("recursive call")))
}

// Every block registers a structural basic-block marker at its function
// so rules can count blocks.
func TestBuildIndexBasicBlockMarkers(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDocument))
	require.NoError(t, err)
	ix, err := doc.BuildIndex()
	require.NoError(t, err)

	fnSet := ix.FeatureSet(ScopeFunction, AbsoluteAddress(4198400))
	locs, ok := fnSet.Locations(BasicBlockFeature())
	assert.True(t, ok)
	assert.Equal(t, 2, locs.Len())
	assert.True(t, locs.Contains(AbsoluteAddress(4198400)))
	assert.True(t, locs.Contains(AbsoluteAddress(4198416)))
}

func TestBuildIndexRejectsUnknownFeatureType(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"file": {"features": [{"type": "import", "value": "x"}]}, "functions": []}`))
	require.NoError(t, err)
	_, err = doc.BuildIndex()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown feature type")
}

func TestBuildIndexRejectsNumberWithoutPayload(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"file": {}, "functions": [{"address": 16, "features": [{"type": "number"}]}]}`))
	require.NoError(t, err)
	_, err = doc.BuildIndex()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "requires a number")
}
