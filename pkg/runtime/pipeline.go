// scry/pkg/runtime/pipeline.go

package runtime

import (
	"context"
	goruntime "runtime"
	"sync"

	"github.com/google/uuid"

	"rgehrsitz/scry/pkg/compiler"
	"rgehrsitz/scry/pkg/features"
	"rgehrsitz/scry/pkg/logging"
)

// Pipeline drives matching finest-to-coarsest: instructions, then basic
// blocks, then functions, then the file. Functions are independent and
// evaluated in parallel; within one function the scope order is strict
// because each level's synthetic rule-matched features depend on the
// previous level's completed results. The rule set and feature index
// are read-only for the duration of a run.
type Pipeline struct {
	rules   *compiler.RuleSet
	index   *features.Index
	stats   *Stats
	workers int
}

type Option func(*Pipeline)

// WithWorkers caps the number of parallel function workers.
func WithWorkers(n int) Option {
	return func(p *Pipeline) { p.workers = n }
}

// WithStats attaches a shared Stats collector.
func WithStats(s *Stats) Option {
	return func(p *Pipeline) { p.stats = s }
}

func NewPipeline(rules *compiler.RuleSet, index *features.Index, opts ...Option) *Pipeline {
	p := &Pipeline{rules: rules, index: index}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers <= 0 {
		p.workers = goruntime.NumCPU()
	}
	return p
}

// matchRecord remembers where a rule matched, for rollup into coarser
// scopes.
type matchRecord struct {
	rule string
	addr features.Address
}

type scopedResult struct {
	scope features.Scope
	res   *MatchResult
}

type functionOutcome struct {
	fn      features.Address
	entries []scopedResult
	matches []matchRecord
	err     error
}

// Run evaluates every rule against the index and returns the result
// tree. The context is honored between addresses; cancellation needs no
// rollback because results are side-effect-free.
func (p *Pipeline) Run(ctx context.Context) (*ResultTree, error) {
	runID := uuid.NewString()
	if p.stats != nil {
		p.stats.begin(runID)
		defer p.stats.finish()
	}
	logging.Logger.Info().
		Str("run_id", runID).
		Int("rules", p.rules.Len()).
		Int("functions", len(p.index.Functions())).
		Msg("Starting matching pass")

	fns := p.index.Functions()
	outcomes := make([]*functionOutcome, len(fns))

	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := p.workers
	if workers > len(fns) {
		workers = len(fns)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = p.matchFunction(ctx, fns[i])
			}
		}()
	}
	for i := range fns {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	tree := NewResultTree()
	fileAddr := p.index.FileAddress()
	fileSet := p.index.FeatureSet(features.ScopeFile, fileAddr).Clone()

	// Merge in ascending function order so the result tree and the file
	// augmentation are independent of worker scheduling.
	for _, outcome := range outcomes {
		if outcome == nil {
			continue
		}
		if outcome.err != nil {
			return nil, outcome.err
		}
		for _, entry := range outcome.entries {
			tree.Record(entry.scope, entry.res)
		}
		for _, m := range outcome.matches {
			fileSet.Add(features.MatchedRuleFeature(m.rule), m.addr)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	working := map[setKey]*features.Set{
		{Scope: features.ScopeFile, Addr: fileAddr}: fileSet,
	}
	ev := NewEvaluator(p.index, working, p.stats)
	for _, rule := range p.rules.RulesFor(features.ScopeFile) {
		res, err := p.evaluateRule(ev, rule, features.ScopeFile, fileAddr)
		if err != nil {
			return nil, err
		}
		tree.Record(features.ScopeFile, res)
		if res.Success {
			fileSet.Add(features.MatchedRuleFeature(rule.Name), fileAddr)
		}
	}

	logging.Logger.Info().Str("run_id", runID).Msg("Matching pass complete")
	return tree, nil
}

// matchFunction runs the strict instruction -> basic block -> function
// ordering for one function. Matches roll up only within this
// function's span; sibling functions never see them.
func (p *Pipeline) matchFunction(ctx context.Context, fn features.Address) *functionOutcome {
	out := &functionOutcome{fn: fn}
	working := make(map[setKey]*features.Set)
	ev := NewEvaluator(p.index, working, p.stats)

	insnRules := p.rules.RulesFor(features.ScopeInstruction)
	bbRules := p.rules.RulesFor(features.ScopeBasicBlock)
	fnRules := p.rules.RulesFor(features.ScopeFunction)

	for _, bb := range p.index.BlocksIn(fn) {
		if err := ctx.Err(); err != nil {
			out.err = err
			return out
		}

		var bbMatches []matchRecord
		for _, insn := range p.index.InstructionsIn(bb) {
			insnSet := p.index.FeatureSet(features.ScopeInstruction, insn).Clone()
			working[setKey{Scope: features.ScopeInstruction, Addr: insn}] = insnSet

			for _, rule := range insnRules {
				res, err := p.evaluateRule(ev, rule, features.ScopeInstruction, insn)
				if err != nil {
					out.err = err
					return out
				}
				out.entries = append(out.entries, scopedResult{features.ScopeInstruction, res})
				if res.Success {
					insnSet.Add(features.MatchedRuleFeature(rule.Name), insn)
					bbMatches = append(bbMatches, matchRecord{rule: rule.Name, addr: insn})
				}
			}
		}

		bbSet := p.index.FeatureSet(features.ScopeBasicBlock, bb).Clone()
		working[setKey{Scope: features.ScopeBasicBlock, Addr: bb}] = bbSet
		for _, m := range bbMatches {
			bbSet.Add(features.MatchedRuleFeature(m.rule), m.addr)
		}

		for _, rule := range bbRules {
			res, err := p.evaluateRule(ev, rule, features.ScopeBasicBlock, bb)
			if err != nil {
				out.err = err
				return out
			}
			out.entries = append(out.entries, scopedResult{features.ScopeBasicBlock, res})
			if res.Success {
				bbSet.Add(features.MatchedRuleFeature(rule.Name), bb)
				bbMatches = append(bbMatches, matchRecord{rule: rule.Name, addr: bb})
			}
		}

		out.matches = append(out.matches, bbMatches...)
	}

	fnSet := p.index.FeatureSet(features.ScopeFunction, fn).Clone()
	working[setKey{Scope: features.ScopeFunction, Addr: fn}] = fnSet
	for _, m := range out.matches {
		fnSet.Add(features.MatchedRuleFeature(m.rule), m.addr)
	}

	for _, rule := range fnRules {
		res, err := p.evaluateRule(ev, rule, features.ScopeFunction, fn)
		if err != nil {
			out.err = err
			return out
		}
		out.entries = append(out.entries, scopedResult{features.ScopeFunction, res})
		if res.Success {
			fnSet.Add(features.MatchedRuleFeature(rule.Name), fn)
			out.matches = append(out.matches, matchRecord{rule: rule.Name, addr: fn})
		}
	}

	if p.stats != nil {
		p.stats.functionProcessed()
	}
	return out
}

// evaluateRule wraps the node-level result with the rule's identity.
func (p *Pipeline) evaluateRule(ev *Evaluator, rule *compiler.Rule, scope features.Scope, addr features.Address) (*MatchResult, error) {
	res, err := ev.Evaluate(rule.Logic, scope, addr)
	if err != nil {
		return nil, err
	}
	if p.stats != nil {
		p.stats.ruleEvaluated()
		if res.Success {
			p.stats.matchFound()
		}
	}
	return &MatchResult{
		Rule:      rule.Name,
		Node:      res.Node,
		Address:   addr,
		Success:   res.Success,
		Locations: res.Locations,
	}, nil
}
