package subagent

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentrt/runtime/aggregator"
	"github.com/agentrt/runtime/decomposer"
	"github.com/agentrt/runtime/hooks"
	"github.com/agentrt/runtime/tools"
	"github.com/agentrt/runtime/workflow"
)

// Manager implements execute_with_subagents (SPEC_FULL.md §4.5): decompose,
// spawn one restricted workflow.Engine per subtask, hand off to the
// Parallel Executor, aggregate, return. It implements
// workflow.SubAgentSpawner, so the top-level engine's spawn_sub_agents node
// can call it without importing this package.
type Manager struct {
	decomposer      *decomposer.Decomposer
	llm             workflow.LLM
	gateway         tools.Gateway
	safety          tools.SafetyChecker
	bus             *hooks.Bus
	executor        *Executor
	aggStrategy     aggregator.Strategy
	summarizer      aggregator.Summarizer
	maxPromptTokens int
}

// Option configures a Manager at construction.
type Option func(*Manager)

func WithAggregationStrategy(s aggregator.Strategy) Option {
	return func(m *Manager) { m.aggStrategy = s }
}
func WithSummarizer(s aggregator.Summarizer) Option { return func(m *Manager) { m.summarizer = s } }
func WithMaxPromptTokens(n int) Option              { return func(m *Manager) { m.maxPromptTokens = n } }

// NewManager constructs a Manager. maxConcurrent <= 0 defaults to 4
// (SPEC_FULL.md §4.5).
func NewManager(dec *decomposer.Decomposer, llm workflow.LLM, gw tools.Gateway, safety tools.SafetyChecker, bus *hooks.Bus, maxConcurrent int, opts ...Option) *Manager {
	m := &Manager{
		decomposer:      dec,
		llm:             llm,
		gateway:         gw,
		safety:          safety,
		bus:             bus,
		executor:        NewExecutor(maxConcurrent),
		aggStrategy:     aggregator.StrategyConcatenate,
		maxPromptTokens: 8000,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ExecuteWithSubAgents implements workflow.SubAgentSpawner.
func (m *Manager) ExecuteWithSubAgents(ctx context.Context, taskDescription, workspace string, parentExtra map[string]any) (workflow.SubAgentRunSummary, error) {
	decomposition := m.decomposer.Decompose(ctx, taskDescription)

	run := func(ctx context.Context, st decomposer.Subtask) aggregator.SubtaskResult {
		return m.runSubtask(ctx, st, workspace, parentExtra)
	}

	start := time.Now()
	results := m.executor.Run(ctx, decomposition.Subtasks, decomposition.ExecutionStrategy, run)
	wall := time.Since(start)

	aggResult, err := aggregator.Aggregate(ctx, results, m.aggStrategy, wall,
		decomposition.ExecutionStrategy == decomposer.StrategySequential, m.summarizer)
	if err != nil {
		return workflow.SubAgentRunSummary{}, err
	}
	return workflow.SubAgentRunSummary{
		Success:              aggResult.Success,
		Summary:              aggResult.Summary,
		TotalDurationSeconds: aggResult.TotalDurationSeconds,
		SuccessCount:         aggResult.SuccessCount,
		FailureCount:         aggResult.FailureCount,
		Errors:               aggResult.Errors,
	}, nil
}

func (m *Manager) runSubtask(ctx context.Context, st decomposer.Subtask, workspace string, parentExtra map[string]any) aggregator.SubtaskResult {
	spec := SpecFor(st.AgentType)
	domain := newRestrictedDomain(spec)

	state := workflow.NewState(uuid.NewString(), st.Description, domain.Name(), workspace,
		spec.MaxIterations, spec.MaxIterations*6, m.maxPromptTokens)
	for k, v := range parentExtra {
		state.Extra[k] = v
	}

	// Sub-agents never spawn further sub-agents: SubAgentConfig.Enabled
	// defaults to false on a fresh State, so check_complexity always
	// resolves to use_sub_agents=false here, bounding recursion depth to one
	// level regardless of how the parent engine was configured.
	eng := workflow.New(domain, m.llm, m.gateway, m.safety, m.bus)
	for range eng.Run(ctx, state) {
		// Events are already published on the shared bus by the engine;
		// draining the channel here just lets the goroutine finish.
	}

	success := state.Status == workflow.StatusCompleted
	errMsg := ""
	if !success {
		errMsg = joinErrors(state)
	}
	return aggregator.SubtaskResult{
		ID:          st.ID,
		Description: st.Description,
		Output:      state.Result,
		Success:     success,
		Error:       errMsg,
	}
}

func joinErrors(state *workflow.State) string {
	msgs := make([]string, 0, len(state.Errors))
	for _, e := range state.Errors {
		msgs = append(msgs, e.Message)
	}
	if len(msgs) == 0 {
		return "subtask did not complete"
	}
	return strings.Join(msgs, "; ")
}
