// scry/pkg/features/scope.go

package features

import "fmt"

// Scope is the granularity at which a rule or feature applies, ordered
// from coarsest (File) to finest (Instruction).
type Scope uint8

const (
	ScopeFile Scope = iota
	ScopeFunction
	ScopeBasicBlock
	ScopeInstruction
)

// Scopes lists all scopes from coarsest to finest.
var Scopes = []Scope{ScopeFile, ScopeFunction, ScopeBasicBlock, ScopeInstruction}

func (s Scope) String() string {
	switch s {
	case ScopeFile:
		return "file"
	case ScopeFunction:
		return "function"
	case ScopeBasicBlock:
		return "basic block"
	case ScopeInstruction:
		return "instruction"
	default:
		return fmt.Sprintf("scope(%d)", uint8(s))
	}
}

// FinerThan reports whether s is a strictly finer granularity than other.
func (s Scope) FinerThan(other Scope) bool {
	return s > other
}

// CoarserThan reports whether s is a strictly coarser granularity than other.
func (s Scope) CoarserThan(other Scope) bool {
	return s < other
}

// ParseScope converts a scope name from a rule definition into a Scope.
func ParseScope(name string) (Scope, error) {
	switch name {
	case "file":
		return ScopeFile, nil
	case "function":
		return ScopeFunction, nil
	case "basic block", "basicblock", "basic_block":
		return ScopeBasicBlock, nil
	case "instruction":
		return ScopeInstruction, nil
	default:
		return ScopeFile, fmt.Errorf("unknown scope %q", name)
	}
}
