// scry/pkg/compiler/parser.go

package compiler

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"rgehrsitz/scry/pkg/logging"
)

// Parse parses a YAML rule document and returns the raw definitions.
// Structural failures here are document-level syntax errors; per-rule
// semantic problems are detected later, in Compile, so that one bad rule
// cannot block the others.
func Parse(data []byte) (*RulesDoc, error) {
	var doc RulesDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		logging.Logger.Error().Err(err).Msg("Failed to unmarshal rule document")
		return nil, logging.NewError(logging.ErrorTypeParse, "invalid rule document", err, nil)
	}
	if len(doc.Rules) == 0 {
		return nil, logging.NewError(logging.ErrorTypeParse, "missing rules field", errors.New("no rules defined"), nil)
	}
	logging.Logger.Debug().Int("rules", len(doc.Rules)).Msg("Parsed rule document")
	return &doc, nil
}

// countSetFields reports how many of the mutually exclusive NodeDef
// fields are populated.
func countSetFields(def *NodeDef) int {
	count := 0
	if len(def.And) > 0 {
		count++
	}
	if len(def.Or) > 0 {
		count++
	}
	if def.Not != nil {
		count++
	}
	if len(def.Optional) > 0 {
		count++
	}
	if def.Some != nil {
		count++
	}
	if def.Count != nil {
		count++
	}
	if def.Subscope != nil {
		count++
	}
	if def.Match != "" {
		count++
	}
	if def.API != "" {
		count++
	}
	if def.String != "" {
		count++
	}
	if def.Substring != "" {
		count++
	}
	if def.Bytes != "" {
		count++
	}
	if def.BytesPrefix != "" {
		count++
	}
	if def.Number != nil {
		count++
	}
	if def.Mnemonic != "" {
		count++
	}
	if def.Offset != nil {
		count++
	}
	if def.Characteristic != "" {
		count++
	}
	if def.BasicBlock {
		count++
	}
	return count
}

// isLeaf reports whether the definition names a single feature rather
// than a boolean combinator. Count operands must be leaves.
func isLeaf(def *NodeDef) bool {
	if def == nil {
		return false
	}
	return countSetFields(def) == 1 &&
		len(def.And) == 0 && len(def.Or) == 0 && def.Not == nil &&
		len(def.Optional) == 0 && def.Some == nil && def.Count == nil &&
		def.Subscope == nil
}

func validateNodeDef(def *NodeDef) error {
	if def == nil {
		return errors.New("nil logic node")
	}
	switch n := countSetFields(def); n {
	case 0:
		return errors.New("empty logic node")
	case 1:
		return nil
	default:
		return fmt.Errorf("logic node sets %d fields, expected exactly one", n)
	}
}
