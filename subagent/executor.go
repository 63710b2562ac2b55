package subagent

import (
	"context"
	"sync"
	"time"

	"github.com/agentrt/runtime/aggregator"
	"github.com/agentrt/runtime/decomposer"
)

// RunFunc executes one subtask and returns its result. Implementations must
// not panic; any failure should be captured in the returned SubtaskResult so
// one subtask's failure never cancels its siblings (SPEC_FULL.md §4.5).
type RunFunc func(ctx context.Context, subtask decomposer.Subtask) aggregator.SubtaskResult

// Executor runs subtasks honoring dependency order with bounded
// concurrency. Grounded on a plain context.Context + sync.WaitGroup +
// buffered-semaphore-channel scheduler, not the Temporal workflow engine
// (see DESIGN.md's dropped-dependency notes).
type Executor struct {
	maxConcurrent int
}

// NewExecutor constructs an Executor. maxConcurrent <= 0 defaults to 4.
func NewExecutor(maxConcurrent int) *Executor {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Executor{maxConcurrent: maxConcurrent}
}

// Run schedules subtasks per strategy: SEQUENTIAL forces concurrency 1 in
// dependency order; PARALLEL/MIXED compute topological levels from
// depends_on and run up to maxConcurrent subtasks concurrently within each
// level, proceeding to the next level only once the current one settles.
func (e *Executor) Run(ctx context.Context, subtasks []decomposer.Subtask, strategy decomposer.Strategy, run RunFunc) []aggregator.SubtaskResult {
	levels := topologicalLevels(subtasks)
	concurrency := e.maxConcurrent
	if strategy == decomposer.StrategySequential {
		concurrency = 1
	}

	results := make(map[string]aggregator.SubtaskResult, len(subtasks))
	var mu sync.Mutex

	for _, level := range levels {
		sem := make(chan struct{}, concurrency)
		var wg sync.WaitGroup
		for _, st := range level {
			st := st
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				r := runOne(ctx, st, run)
				mu.Lock()
				results[st.ID] = r
				mu.Unlock()
			}()
		}
		wg.Wait()
	}

	ordered := make([]aggregator.SubtaskResult, 0, len(subtasks))
	for _, st := range subtasks {
		ordered = append(ordered, results[st.ID])
	}
	return ordered
}

// runOne applies the subtask's timeout, cancelling only this subtask
// (SPEC_FULL.md §4.5 "per-subtask timeout cancels only that subtask").
func runOne(ctx context.Context, st decomposer.Subtask, run RunFunc) aggregator.SubtaskResult {
	spec := SpecFor(st.AgentType)
	timeout := time.Duration(spec.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	subCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result := run(subCtx, st)
	if result.ID == "" {
		result.ID = st.ID
	}
	result.DurationSeconds = time.Since(start).Seconds()
	if subCtx.Err() != nil && result.Error == "" && !result.Success {
		result.Error = subCtx.Err().Error()
	}
	return result
}

// topologicalLevels groups subtasks into dependency layers via repeated
// Kahn's-algorithm passes: level 0 has no dependencies, level N depends
// only on subtasks in levels < N. A malformed graph (cycle, unknown id) —
// already rejected by decomposer.Decompose before this runs — degrades to
// one level containing every remaining subtask, never dropping work.
func topologicalLevels(subtasks []decomposer.Subtask) [][]decomposer.Subtask {
	byID := make(map[string]decomposer.Subtask, len(subtasks))
	indegree := make(map[string]int, len(subtasks))
	dependents := make(map[string][]string, len(subtasks))
	for _, s := range subtasks {
		byID[s.ID] = s
		indegree[s.ID] = 0
	}
	for _, s := range subtasks {
		for _, dep := range s.DependsOn {
			if _, ok := byID[dep]; !ok {
				continue
			}
			indegree[s.ID]++
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	var levels [][]decomposer.Subtask
	remaining := len(subtasks)
	done := make(map[string]bool, len(subtasks))
	for remaining > 0 {
		var level []decomposer.Subtask
		for _, s := range subtasks {
			if indegree[s.ID] == 0 && !done[s.ID] {
				level = append(level, s)
			}
		}
		if len(level) == 0 {
			// Cycle slipped through upstream validation; flush whatever is
			// left as one final level rather than looping forever.
			for _, s := range subtasks {
				if !done[s.ID] {
					level = append(level, s)
				}
			}
			levels = append(levels, level)
			break
		}
		for _, s := range level {
			done[s.ID] = true
			remaining--
		}
		for _, s := range level {
			for _, next := range dependents[s.ID] {
				indegree[next]--
			}
		}
		levels = append(levels, level)
	}
	return levels
}
