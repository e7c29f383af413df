// scry/pkg/compiler/structs.go

package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// RulesDoc is one rule definition document as produced by the external
// document parser. YAML is the native format; JSON documents with the
// same shape also unmarshal.
type RulesDoc struct {
	Rules []*RuleDef `yaml:"rules" json:"rules"`
}

// RuleDef is one raw rule definition. Meta is opaque passthrough for
// renderers (authors, references, classification tags).
type RuleDef struct {
	Name  string                 `yaml:"name" json:"name"`
	Scope string                 `yaml:"scope" json:"scope"`
	Meta  map[string]interface{} `yaml:"meta,omitempty" json:"meta,omitempty"`
	Logic *NodeDef               `yaml:"logic" json:"logic"`
}

// NodeDef is the raw, loosely-typed logic node. Exactly one field must
// be set; the compiler rejects anything else.
type NodeDef struct {
	And      []*NodeDef   `yaml:"and,omitempty" json:"and,omitempty"`
	Or       []*NodeDef   `yaml:"or,omitempty" json:"or,omitempty"`
	Not      *NodeDef     `yaml:"not,omitempty" json:"not,omitempty"`
	Optional []*NodeDef   `yaml:"optional,omitempty" json:"optional,omitempty"`
	Some     *SomeDef     `yaml:"some,omitempty" json:"some,omitempty"`
	Count    *CountDef    `yaml:"count,omitempty" json:"count,omitempty"`
	Subscope *SubscopeDef `yaml:"subscope,omitempty" json:"subscope,omitempty"`
	Match    string       `yaml:"match,omitempty" json:"match,omitempty"`

	API            string     `yaml:"api,omitempty" json:"api,omitempty"`
	String         string     `yaml:"string,omitempty" json:"string,omitempty"`
	Substring      string     `yaml:"substring,omitempty" json:"substring,omitempty"`
	Bytes          string     `yaml:"bytes,omitempty" json:"bytes,omitempty"`
	BytesPrefix    string     `yaml:"bytes_prefix,omitempty" json:"bytes_prefix,omitempty"`
	Number         *NumberDef `yaml:"number,omitempty" json:"number,omitempty"`
	Mnemonic       string     `yaml:"mnemonic,omitempty" json:"mnemonic,omitempty"`
	Offset         *NumberDef `yaml:"offset,omitempty" json:"offset,omitempty"`
	Characteristic string     `yaml:"characteristic,omitempty" json:"characteristic,omitempty"`
	BasicBlock     bool       `yaml:"basic_block,omitempty" json:"basic_block,omitempty"`
}

// SomeDef is the raw threshold node: at least Min of Of must hold.
type SomeDef struct {
	Min int        `yaml:"min" json:"min"`
	Of  []*NodeDef `yaml:"of" json:"of"`
}

// CountDef bounds the number of occurrences of a leaf feature. A nil
// Max means unbounded ("N or more").
type CountDef struct {
	Of  *NodeDef `yaml:"of" json:"of"`
	Min int      `yaml:"min" json:"min"`
	Max *int     `yaml:"max,omitempty" json:"max,omitempty"`
}

// SubscopeDef requires Node to hold at some address of the named finer
// scope within the current span.
type SubscopeDef struct {
	Scope string   `yaml:"scope" json:"scope"`
	Node  *NodeDef `yaml:"node" json:"node"`
}

// NumberDef is either an exact value or a [min, max] range. Scalars may
// be decimal or 0x-prefixed hex.
type NumberDef struct {
	Value *uint64
	Min   *uint64
	Max   *uint64
}

type numberRange struct {
	Min *yaml.Node `yaml:"min" json:"min"`
	Max *yaml.Node `yaml:"max" json:"max"`
}

func parseNumberScalar(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

// UnmarshalYAML accepts `number: 0x40`, `number: 64`, and
// `number: {min: ..., max: ...}` forms.
func (n *NumberDef) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		v, err := parseNumberScalar(value.Value)
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", value.Value, err)
		}
		n.Value = &v
		return nil
	}

	var r numberRange
	if err := value.Decode(&r); err != nil {
		return fmt.Errorf("invalid number range: %w", err)
	}
	if r.Min != nil {
		v, err := parseNumberScalar(r.Min.Value)
		if err != nil {
			return fmt.Errorf("invalid number range min %q: %w", r.Min.Value, err)
		}
		n.Min = &v
	}
	if r.Max != nil {
		v, err := parseNumberScalar(r.Max.Value)
		if err != nil {
			return fmt.Errorf("invalid number range max %q: %w", r.Max.Value, err)
		}
		n.Max = &v
	}
	if n.Min == nil && n.Max == nil {
		return fmt.Errorf("number range requires min or max")
	}
	return nil
}
