package subagent

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/runtime/aggregator"
	"github.com/agentrt/runtime/decomposer"
)

func TestExecutor_RunsSequentialInOrderWithConcurrencyOne(t *testing.T) {
	subtasks := []decomposer.Subtask{
		{ID: "1", AgentType: decomposer.AgentTaskExecutor},
		{ID: "2", AgentType: decomposer.AgentTaskExecutor},
		{ID: "3", AgentType: decomposer.AgentTaskExecutor},
	}
	var mu sync.Mutex
	var order []string
	var maxInFlight, inFlight int32

	run := func(ctx context.Context, st decomposer.Subtask) aggregator.SubtaskResult {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxInFlight)
			if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		order = append(order, st.ID)
		mu.Unlock()
		atomic.AddInt32(&inFlight, -1)
		return aggregator.SubtaskResult{ID: st.ID, Success: true}
	}

	e := NewExecutor(4)
	results := e.Run(context.Background(), subtasks, decomposer.StrategySequential, run)

	require.Len(t, results, 3)
	assert.Equal(t, []string{"1", "2", "3"}, order)
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight), "sequential strategy must force concurrency 1")
}

func TestExecutor_ParallelRunsIndependentSubtasksConcurrently(t *testing.T) {
	subtasks := []decomposer.Subtask{
		{ID: "a", AgentType: decomposer.AgentTaskExecutor},
		{ID: "b", AgentType: decomposer.AgentTaskExecutor},
	}
	var wg sync.WaitGroup
	wg.Add(2)
	run := func(ctx context.Context, st decomposer.Subtask) aggregator.SubtaskResult {
		wg.Done()
		wg.Wait() // blocks forever unless both run concurrently
		return aggregator.SubtaskResult{ID: st.ID, Success: true}
	}

	e := NewExecutor(4)
	done := make(chan []aggregator.SubtaskResult, 1)
	go func() { done <- e.Run(context.Background(), subtasks, decomposer.StrategyParallel, run) }()

	select {
	case results := <-done:
		assert.Len(t, results, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("parallel subtasks did not run concurrently")
	}
}

func TestExecutor_RespectsDependencyLevels(t *testing.T) {
	subtasks := []decomposer.Subtask{
		{ID: "base", AgentType: decomposer.AgentTaskExecutor},
		{ID: "dependent", AgentType: decomposer.AgentTaskExecutor, DependsOn: []string{"base"}},
	}
	var mu sync.Mutex
	var completed []string
	run := func(ctx context.Context, st decomposer.Subtask) aggregator.SubtaskResult {
		if st.ID == "dependent" {
			mu.Lock()
			baseDone := len(completed) == 1 && completed[0] == "base"
			mu.Unlock()
			assert.True(t, baseDone, "dependent subtask must not start before its dependency completes")
		}
		mu.Lock()
		completed = append(completed, st.ID)
		mu.Unlock()
		return aggregator.SubtaskResult{ID: st.ID, Success: true}
	}

	e := NewExecutor(4)
	results := e.Run(context.Background(), subtasks, decomposer.StrategyMixed, run)
	require.Len(t, results, 2)
}

func TestExecutor_PerSubtaskTimeoutCancelsOnlyThatSubtask(t *testing.T) {
	subtasks := []decomposer.Subtask{
		{ID: "slow", AgentType: decomposer.AgentCommandRunner}, // 180s spec timeout, but we blow past it via ctx cancel below
		{ID: "fast", AgentType: decomposer.AgentTaskExecutor},
	}
	run := func(ctx context.Context, st decomposer.Subtask) aggregator.SubtaskResult {
		if st.ID == "slow" {
			<-ctx.Done()
			return aggregator.SubtaskResult{ID: st.ID, Success: false}
		}
		return aggregator.SubtaskResult{ID: st.ID, Success: true}
	}

	e := NewExecutor(4)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	results := e.Run(ctx, subtasks, decomposer.StrategyParallel, run)

	require.Len(t, results, 2)
	for _, r := range results {
		if r.ID == "fast" {
			assert.True(t, r.Success)
		}
	}
}

func TestTopologicalLevels_DegradesCyclesToOneLevel(t *testing.T) {
	subtasks := []decomposer.Subtask{
		{ID: "x", DependsOn: []string{"y"}},
		{ID: "y", DependsOn: []string{"x"}},
	}
	levels := topologicalLevels(subtasks)
	require.Len(t, levels, 1)
	assert.Len(t, levels[0], 2)
}

func TestTopologicalLevels_UnknownDependencyIgnored(t *testing.T) {
	subtasks := []decomposer.Subtask{
		{ID: "only", DependsOn: []string{"ghost"}},
	}
	levels := topologicalLevels(subtasks)
	require.Len(t, levels, 1)
	assert.Equal(t, "only", levels[0][0].ID)
}
