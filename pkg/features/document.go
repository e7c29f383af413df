// scry/pkg/features/document.go

package features

import (
	"encoding/json"
	"fmt"
)

// Document is the JSON interchange form of a feature index, produced by
// the extraction collaborator. Addresses are absolute virtual addresses.
type Document struct {
	File      FileDoc       `json:"file"`
	Functions []FunctionDoc `json:"functions"`
}

type FileDoc struct {
	Features []FeatureDoc `json:"features,omitempty"`
}

type FunctionDoc struct {
	Address  uint64       `json:"address"`
	Features []FeatureDoc `json:"features,omitempty"`
	Blocks   []BlockDoc   `json:"blocks,omitempty"`
}

type BlockDoc struct {
	Address      uint64           `json:"address"`
	Features     []FeatureDoc     `json:"features,omitempty"`
	Instructions []InstructionDoc `json:"instructions,omitempty"`
}

type InstructionDoc struct {
	Address  uint64       `json:"address"`
	Features []FeatureDoc `json:"features,omitempty"`
}

// FeatureDoc is one serialized feature. String-like payloads use Value,
// numeric payloads use Number. Bytes payloads are hex strings.
type FeatureDoc struct {
	Type   string  `json:"type"`
	Value  string  `json:"value,omitempty"`
	Number *uint64 `json:"number,omitempty"`
}

func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid feature document: %w", err)
	}
	return &doc, nil
}

func (fd FeatureDoc) feature() (Feature, error) {
	kind := Kind(fd.Type)
	if !KnownKind(kind) {
		return Feature{}, fmt.Errorf("unknown feature type %q", fd.Type)
	}
	switch kind {
	case KindNumber, KindOffset:
		if fd.Number == nil {
			return Feature{}, fmt.Errorf("feature type %q requires a number", fd.Type)
		}
		return Feature{Kind: kind, Num: *fd.Number}, nil
	case KindBasicBlock:
		return BasicBlockFeature(), nil
	default:
		return Feature{Kind: kind, Str: fd.Value}, nil
	}
}

// BuildIndex converts a document into an Index. Instruction features
// accumulate into their block's set and block features into their
// function's set, keeping the original locations, so coarser-scope rules
// can test finer features directly. Block existence is also registered
// as a basic-block marker at the enclosing function so rules may count
// blocks structurally.
func (d *Document) BuildIndex() (*Index, error) {
	ix := NewIndex()

	for _, fd := range d.File.Features {
		f, err := fd.feature()
		if err != nil {
			return nil, err
		}
		ix.AddFeature(ScopeFile, ix.FileAddress(), f)
	}

	for _, fn := range d.Functions {
		fnAddr := AbsoluteAddress(fn.Address)
		ix.AddFunction(fnAddr)
		for _, fd := range fn.Features {
			f, err := fd.feature()
			if err != nil {
				return nil, err
			}
			ix.AddFeature(ScopeFunction, fnAddr, f)
		}
		for _, bb := range fn.Blocks {
			bbAddr := AbsoluteAddress(bb.Address)
			ix.AddBasicBlock(fnAddr, bbAddr)
			ix.AddFeature(ScopeFunction, fnAddr, BasicBlockFeature(), bbAddr)
			for _, fd := range bb.Features {
				f, err := fd.feature()
				if err != nil {
					return nil, err
				}
				ix.AddFeature(ScopeBasicBlock, bbAddr, f)
				ix.AddFeature(ScopeFunction, fnAddr, f, bbAddr)
			}
			for _, insn := range bb.Instructions {
				insnAddr := AbsoluteAddress(insn.Address)
				ix.AddInstruction(bbAddr, insnAddr)
				for _, fd := range insn.Features {
					f, err := fd.feature()
					if err != nil {
						return nil, err
					}
					ix.AddFeature(ScopeInstruction, insnAddr, f)
					ix.AddFeature(ScopeBasicBlock, bbAddr, f, insnAddr)
					ix.AddFeature(ScopeFunction, fnAddr, f, insnAddr)
				}
			}
		}
	}

	return ix, nil
}
