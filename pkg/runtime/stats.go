// scry/pkg/runtime/stats.go

package runtime

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats tracks counters for one or more matching passes. Counters are
// safe for the pipeline's parallel function workers.
type Stats struct {
	functionsProcessed atomic.Int64
	rulesEvaluated     atomic.Int64
	nodesEvaluated     atomic.Int64
	matchesFound       atomic.Int64

	mu      sync.Mutex
	runID   string
	started time.Time
	elapsed time.Duration
	running bool
}

// StatsSnapshot is the JSON view broadcast by the dashboard.
type StatsSnapshot struct {
	RunID              string `json:"run_id"`
	Running            bool   `json:"running"`
	FunctionsProcessed int64  `json:"functions_processed"`
	RulesEvaluated     int64  `json:"rules_evaluated"`
	NodesEvaluated     int64  `json:"nodes_evaluated"`
	MatchesFound       int64  `json:"matches_found"`
	ElapsedMS          int64  `json:"elapsed_ms"`
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) begin(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = runID
	s.started = time.Now()
	s.running = true
}

func (s *Stats) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elapsed = time.Since(s.started)
	s.running = false
}

func (s *Stats) functionProcessed() { s.functionsProcessed.Add(1) }
func (s *Stats) ruleEvaluated()     { s.rulesEvaluated.Add(1) }
func (s *Stats) nodeEvaluated()     { s.nodesEvaluated.Add(1) }
func (s *Stats) matchFound()        { s.matchesFound.Add(1) }

// Snapshot returns a point-in-time copy of the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	runID := s.runID
	running := s.running
	elapsed := s.elapsed
	if running {
		elapsed = time.Since(s.started)
	}
	s.mu.Unlock()

	return StatsSnapshot{
		RunID:              runID,
		Running:            running,
		FunctionsProcessed: s.functionsProcessed.Load(),
		RulesEvaluated:     s.rulesEvaluated.Load(),
		NodesEvaluated:     s.nodesEvaluated.Load(),
		MatchesFound:       s.matchesFound.Load(),
		ElapsedMS:          elapsed.Milliseconds(),
	}
}
