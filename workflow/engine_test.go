package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/runtime/hooks"
	"github.com/agentrt/runtime/model"
	"github.com/agentrt/runtime/tools"
)

// scriptedLLM returns queued replies in order, one per ChatCompletion call;
// the last reply repeats once the queue is exhausted.
type scriptedLLM struct {
	mu      sync.Mutex
	replies []llmReply
	calls   int
}

type llmReply struct {
	text string
	err  error
}

func (s *scriptedLLM) ChatCompletion(ctx context.Context, req *model.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	s.calls++
	r := s.replies[i]
	return r.text, r.err
}

func ok(text string) llmReply { return llmReply{text: text} }
func fail(msg string) llmReply { return llmReply{err: errors.New(msg)} }

type allowAllSafety struct{}

func (allowAllSafety) Validate(ctx context.Context, toolName string, parameters map[string]any, workspace string) (bool, string) {
	return true, ""
}

type denyAllSafety struct{ reason string }

func (d denyAllSafety) Validate(ctx context.Context, toolName string, parameters map[string]any, workspace string) (bool, string) {
	return false, d.reason
}

type stubGateway struct {
	readFileResult tools.Result
	readFileErr    error
}

func (g stubGateway) ReadFile(ctx context.Context, path string) (tools.Result, error) {
	return g.readFileResult, g.readFileErr
}
func (stubGateway) WriteFile(ctx context.Context, path, content string) (tools.Result, error) {
	return tools.Result{Success: true}, nil
}
func (stubGateway) ListDirectory(ctx context.Context, path string, recursive bool) (tools.Result, error) {
	return tools.Result{Success: true}, nil
}
func (stubGateway) Search(ctx context.Context, pattern, glob string) (tools.Result, error) {
	return tools.Result{Success: true}, nil
}
func (stubGateway) RunCommand(ctx context.Context, cmd, cwd string, timeout int) (tools.Result, error) {
	return tools.Result{Success: true}, nil
}
func (stubGateway) GitStatus(ctx context.Context, repo string) (tools.Result, error) {
	return tools.Result{Success: true}, nil
}

func drain(ch <-chan hooks.Event) []hooks.Event {
	var out []hooks.Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func newGeneralState(task string) *State {
	return NewState("t1", task, "general", "/workspace", 10, 60, 8000)
}

// Scenario: a task that completes on its first execute-node COMPLETE action.
func TestEngine_Scenario_CompletesOnFirstAction(t *testing.T) {
	llm := &scriptedLLM{replies: []llmReply{
		ok(`{"approach":"direct","steps":["do it"],"estimated_iterations":1,"rationale":"simple"}`),
		ok(`{"action":"COMPLETE","parameters":{},"summary":"all done"}`),
	}}
	eng := New(NewGeneralDomain(), llm, stubGateway{}, allowAllSafety{}, hooks.New())
	state := newGeneralState("write a haiku about go")

	events := drain(eng.Run(context.Background(), state))

	require.True(t, state.Terminal())
	assert.Equal(t, StatusCompleted, state.Status)
	assert.Equal(t, "all done", state.Result)
	assert.Equal(t, 1, state.Iteration, "iteration increments exactly once for the single execute visit")

	var sawCompleted bool
	for _, ev := range events {
		if _, ok := ev.(WorkflowCompleted); ok {
			sawCompleted = true
		}
	}
	assert.True(t, sawCompleted)
}

// Scenario: greeting-like input short-circuits at the plan node without any
// execute/reflect cycling.
func TestEngine_Scenario_GreetingShortCircuitsAtPlan(t *testing.T) {
	llm := &scriptedLLM{replies: []llmReply{fail("must not be called")}}
	eng := New(NewGeneralDomain(), llm, stubGateway{}, allowAllSafety{}, hooks.New())
	state := newGeneralState("hi")

	drain(eng.Run(context.Background(), state))

	assert.Equal(t, StatusCompleted, state.Status)
	assert.Equal(t, 0, llm.calls, "greeting-like input must never reach the LLM")
	assert.Equal(t, 0, state.Iteration)
}

// Scenario: tool execution then a follow-up COMPLETE action across two
// execute/reflect cycles.
func TestEngine_Scenario_ToolCallThenComplete(t *testing.T) {
	llm := &scriptedLLM{replies: []llmReply{
		ok(`{"approach":"a","steps":["read","finish"],"estimated_iterations":2,"rationale":"r"}`),
		ok(`{"action":"READ_FILE","parameters":{"path":"a.go"}}`),
		ok(`{"action":"COMPLETE","parameters":{},"summary":"read and done"}`),
	}}
	gw := stubGateway{readFileResult: tools.Result{Success: true, Metadata: map[string]any{"path": "a.go", "bytes": 10}}}
	eng := New(NewGeneralDomain(), llm, gw, allowAllSafety{}, hooks.New())
	state := newGeneralState("read a.go and summarize")

	events := drain(eng.Run(context.Background(), state))

	assert.Equal(t, StatusCompleted, state.Status)
	assert.Equal(t, 2, state.Iteration)
	require.Len(t, state.ToolCalls, 2)
	assert.Equal(t, "READ_FILE", state.ToolCalls[0].Action)
	assert.True(t, state.ToolCalls[0].Success)
	assert.Contains(t, state.CompletedSteps, "READ_FILE")

	var sawTool bool
	for _, ev := range events {
		if te, ok := ev.(ToolExecuted); ok && te.Tool == "READ_FILE" {
			sawTool = true
		}
	}
	assert.True(t, sawTool)
}

// Scenario: the safety checker denies a tool call; the denial is recorded as
// a failed tool call rather than terminating the run.
func TestEngine_Scenario_SafetyDenialRecordsFailureNotTermination(t *testing.T) {
	llm := &scriptedLLM{replies: []llmReply{
		ok(`{"approach":"a","steps":["x"],"estimated_iterations":2,"rationale":"r"}`),
		ok(`{"action":"RUN_COMMAND","parameters":{"cmd":"rm -rf /"}}`),
		ok(`{"action":"COMPLETE","parameters":{},"summary":"done anyway"}`),
	}}
	eng := New(NewGeneralDomain(), llm, stubGateway{}, denyAllSafety{reason: "dangerous command"}, hooks.New())
	state := newGeneralState("run a risky command")

	drain(eng.Run(context.Background(), state))

	require.Len(t, state.ToolCalls, 2)
	assert.False(t, state.ToolCalls[0].Success)
	assert.Equal(t, "dangerous command", state.ToolCalls[0].Result.Error)
	assert.Equal(t, StatusCompleted, state.Status, "a denied tool call must not itself terminate the run")
}

// Boundary: reflect enforces MaxIterations even when the model never emits
// COMPLETE.
func TestEngine_Boundary_MaxIterationsReached(t *testing.T) {
	llm := &scriptedLLM{replies: []llmReply{
		ok(`{"approach":"a","steps":["x"],"estimated_iterations":1,"rationale":"r"}`),
		ok(`{"action":"READ_FILE","parameters":{"path":"a.go"}}`),
	}}
	eng := New(NewGeneralDomain(), llm, stubGateway{}, allowAllSafety{}, hooks.New())
	state := newGeneralState("keep reading forever")
	state.MaxIterations = 3

	drain(eng.Run(context.Background(), state))

	assert.Equal(t, StatusFailed, state.Status)
	assert.Equal(t, 3, state.Iteration)
	require.NotEmpty(t, state.Errors)
	assert.Contains(t, state.Errors[len(state.Errors)-1].Message, "max iterations")
}

// Boundary: three consecutive JSON parse failures in execute terminate the
// run, and the iteration counter still increments once per visit.
func TestEngine_Boundary_ThreeConsecutiveParseFailuresTerminates(t *testing.T) {
	llm := &scriptedLLM{replies: []llmReply{
		ok(`{"approach":"a","steps":["x"],"estimated_iterations":1,"rationale":"r"}`),
		ok("not json at all"),
		ok("still not json"),
		ok("nope"),
	}}
	eng := New(NewGeneralDomain(), llm, stubGateway{}, allowAllSafety{}, hooks.New())
	state := newGeneralState("confuse the model")
	state.MaxIterations = 50

	drain(eng.Run(context.Background(), state))

	assert.Equal(t, StatusFailed, state.Status)
	assert.Equal(t, 3, state.Iteration, "iteration must increment once per execute visit even on parse failure")
	require.NotEmpty(t, state.Errors)
	assert.Contains(t, state.Errors[len(state.Errors)-1].Message, "three consecutive")
}

// A single good parse in between resets the consecutive-failure counter, so
// two failures either side of a success never accumulate to the limit.
func TestEngine_ParseFailureCounterResetsOnSuccess(t *testing.T) {
	llm := &scriptedLLM{replies: []llmReply{
		ok(`{"approach":"a","steps":["x"],"estimated_iterations":3,"rationale":"r"}`),
		ok("bad json"),
		ok(`{"action":"READ_FILE","parameters":{"path":"a.go"}}`),
		ok("bad json again"),
		ok(`{"action":"COMPLETE","parameters":{},"summary":"done"}`),
	}}
	eng := New(NewGeneralDomain(), llm, stubGateway{}, allowAllSafety{}, hooks.New())
	state := newGeneralState("wobbly model")
	state.MaxIterations = 50

	drain(eng.Run(context.Background(), state))

	assert.Equal(t, StatusCompleted, state.Status)
	assert.Equal(t, 4, state.Iteration)
}

// Invariant: iteration increments exactly once per execute node visit, even
// on an LLM call failure.
func TestEngine_Invariant_IterationIncrementsOnLLMError(t *testing.T) {
	llm := &scriptedLLM{replies: []llmReply{
		ok(`{"approach":"a","steps":["x"],"estimated_iterations":1,"rationale":"r"}`),
		fail("connection reset"),
		ok(`{"action":"COMPLETE","parameters":{},"summary":"done"}`),
	}}
	eng := New(NewGeneralDomain(), llm, stubGateway{}, allowAllSafety{}, hooks.New())
	state := newGeneralState("flaky endpoint")
	state.MaxIterations = 50

	drain(eng.Run(context.Background(), state))

	assert.Equal(t, StatusCompleted, state.Status)
	assert.Equal(t, 2, state.Iteration)
}

// Invariant: the recursion-limit safety net terminates the run independent
// of MaxIterations when node transitions run away.
func TestEngine_Invariant_RecursionLimitIndependentOfMaxIterations(t *testing.T) {
	llm := &scriptedLLM{replies: []llmReply{
		ok(`{"approach":"a","steps":["x"],"estimated_iterations":1,"rationale":"r"}`),
		ok(`{"action":"READ_FILE","parameters":{"path":"a.go"}}`),
	}}
	eng := New(NewGeneralDomain(), llm, stubGateway{}, allowAllSafety{}, hooks.New())
	state := newGeneralState("runaway")
	state.MaxIterations = 1000
	state.RecursionLimit = 5

	drain(eng.Run(context.Background(), state))

	assert.Equal(t, StatusFailed, state.Status)
	require.NotEmpty(t, state.Errors)
	assert.Contains(t, state.Errors[len(state.Errors)-1].Message, "recursion")
}

// Idempotence: re-entering plan on a state that already has a Plan is a
// no-op — exercised here by calling the node function directly, twice.
func TestEngine_Plan_IsIdempotentOnceSet(t *testing.T) {
	llm := &scriptedLLM{replies: []llmReply{fail("must not be called again")}}
	eng := New(NewGeneralDomain(), llm, stubGateway{}, allowAllSafety{}, hooks.New())
	state := newGeneralState("some task")
	state.Plan = &Plan{Approach: "already planned", Steps: []string{"x"}}

	eng.plan(context.Background(), state, nil)

	assert.Equal(t, "already planned", state.Plan.Approach)
	assert.Equal(t, 0, llm.calls)
}

// plan degrades to a safe single-step direct-execution plan when the LLM
// call itself fails, rather than leaving Plan nil.
func TestEngine_Plan_DegradesToDirectExecutionOnLLMFailure(t *testing.T) {
	llm := &scriptedLLM{replies: []llmReply{fail("down")}}
	eng := New(NewGeneralDomain(), llm, stubGateway{}, allowAllSafety{}, hooks.New())
	state := newGeneralState("do the thing")

	eng.plan(context.Background(), state, nil)

	require.NotNil(t, state.Plan)
	assert.Equal(t, "direct execution", state.Plan.Approach)
	assert.Equal(t, []string{"do the thing"}, state.Plan.Steps)
}

// check_complexity degrades to use_sub_agents=false on an estimator error.
func TestEngine_CheckComplexity_DegradesOnEstimatorError(t *testing.T) {
	eng := New(NewGeneralDomain(), &scriptedLLM{replies: []llmReply{fail("down")}}, stubGateway{}, allowAllSafety{}, hooks.New())
	state := newGeneralState("complex task")
	state.SubAgentConfig = SubAgentConfig{Enabled: true, ComplexityThreshold: 0.5}

	eng.checkComplexity(context.Background(), state, nil)

	assert.False(t, state.UseSubAgents)
}

// check_complexity is skipped entirely (use_sub_agents stays false) when
// sub-agents aren't enabled for this run, regardless of complexity.
func TestEngine_CheckComplexity_DisabledShortCircuits(t *testing.T) {
	eng := New(NewGeneralDomain(), &scriptedLLM{replies: []llmReply{ok(`{"complexity":0.99}`)}}, stubGateway{}, allowAllSafety{}, hooks.New())
	state := newGeneralState("complex task")
	state.SubAgentConfig = SubAgentConfig{Enabled: false}

	eng.checkComplexity(context.Background(), state, nil)

	assert.False(t, state.UseSubAgents)
}

type fakeSpawner struct {
	summary SubAgentRunSummary
	err     error
}

func (f fakeSpawner) ExecuteWithSubAgents(ctx context.Context, taskDescription, workspace string, parentExtra map[string]any) (SubAgentRunSummary, error) {
	return f.summary, f.err
}

// Scenario: high complexity routes straight to spawn_sub_agents, bypassing
// execute/reflect entirely.
func TestEngine_Scenario_HighComplexityRoutesToSubAgents(t *testing.T) {
	llm := &scriptedLLM{replies: []llmReply{
		ok(`{"approach":"a","steps":["x"],"estimated_iterations":1,"rationale":"r"}`),
		ok(`{"complexity":0.95}`),
	}}
	spawner := fakeSpawner{summary: SubAgentRunSummary{Success: true, Summary: "sub-agents finished"}}
	eng := New(NewGeneralDomain(), llm, stubGateway{}, allowAllSafety{}, hooks.New(), WithSpawner(spawner))
	state := newGeneralState("a very complex task")
	state.SubAgentConfig = SubAgentConfig{Enabled: true, ComplexityThreshold: 0.5}

	drain(eng.Run(context.Background(), state))

	assert.Equal(t, StatusCompleted, state.Status)
	assert.Equal(t, "sub-agents finished", state.Result)
	assert.Equal(t, 0, state.Iteration, "spawn_sub_agents bypasses the execute/reflect loop entirely")
}

// spawn_sub_agents fails the run cleanly when enabled but no spawner was
// configured.
func TestEngine_SpawnSubAgents_FailsWithoutSpawnerConfigured(t *testing.T) {
	llm := &scriptedLLM{replies: []llmReply{
		ok(`{"approach":"a","steps":["x"],"estimated_iterations":1,"rationale":"r"}`),
		ok(`{"complexity":0.95}`),
	}}
	eng := New(NewGeneralDomain(), llm, stubGateway{}, allowAllSafety{}, hooks.New())
	state := newGeneralState("a very complex task")
	state.SubAgentConfig = SubAgentConfig{Enabled: true, ComplexityThreshold: 0.5}

	drain(eng.Run(context.Background(), state))

	assert.Equal(t, StatusFailed, state.Status)
}

// Cancellation before the run starts fails fast without touching the LLM.
func TestEngine_CancelledContextBeforeStart(t *testing.T) {
	llm := &scriptedLLM{replies: []llmReply{fail("must not be called")}}
	eng := New(NewGeneralDomain(), llm, stubGateway{}, allowAllSafety{}, hooks.New())
	state := newGeneralState("whatever")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	drain(eng.Run(ctx, state))

	assert.Equal(t, StatusFailed, state.Status)
	assert.Equal(t, 0, llm.calls)
}
