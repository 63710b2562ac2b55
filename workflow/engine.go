package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentrt/runtime/agenterrors"
	"github.com/agentrt/runtime/hooks"
	"github.com/agentrt/runtime/model"
	"github.com/agentrt/runtime/telemetry"
	"github.com/agentrt/runtime/tools"
)

// LLM is the narrow chat-completions surface the engine needs.
type LLM interface {
	ChatCompletion(ctx context.Context, req *model.Request) (string, error)
}

// SubAgentRunSummary is the shape the spawn_sub_agents node writes into
// State.Result once the Sub-Agent Manager returns (SPEC_FULL.md §4.5/§4.6).
type SubAgentRunSummary struct {
	Success              bool
	Summary              string
	TotalDurationSeconds float64
	SuccessCount         int
	FailureCount         int
	Errors               []string
}

// SubAgentSpawner decouples the workflow engine from the Sub-Agent Manager
// (package subagent), which in turn depends on this package to run each
// sub-agent as its own restricted workflow.Engine instance — keeping the
// dependency one-directional.
type SubAgentSpawner interface {
	ExecuteWithSubAgents(ctx context.Context, taskDescription, workspace string, parentExtra map[string]any) (SubAgentRunSummary, error)
}

// ComplexityEstimator estimates task complexity in [0,1] for check_complexity
// (SPEC_FULL.md §4.3). Failures degrade to use_sub_agents=false.
type ComplexityEstimator interface {
	EstimateComplexity(ctx context.Context, taskDescription string) (float64, error)
}

// Engine runs one workflow domain's plan/check_complexity/execute/reflect
// state machine. Grounded on the teacher's workflow_loop.go loop shape
// (handle interrupts/deadlines/await/tool-turns) adapted to this spec's
// fixed five-node skeleton.
type Engine struct {
	domain     Domain
	llm        LLM
	gateway    tools.Gateway
	safety     tools.SafetyChecker
	bus        *hooks.Bus
	spawner    SubAgentSpawner
	complexity ComplexityEstimator
	telemetry  telemetry.Handles
}

// Option configures an Engine at construction.
type Option func(*Engine)

func WithSpawner(s SubAgentSpawner) Option        { return func(e *Engine) { e.spawner = s } }
func WithComplexityEstimator(c ComplexityEstimator) Option {
	return func(e *Engine) { e.complexity = c }
}
func WithTelemetry(h telemetry.Handles) Option { return func(e *Engine) { e.telemetry = h } }

// New constructs an Engine for one domain.
func New(domain Domain, llm LLM, gw tools.Gateway, safety tools.SafetyChecker, bus *hooks.Bus, opts ...Option) *Engine {
	e := &Engine{
		domain:    domain,
		llm:       llm,
		gateway:   gw,
		safety:    safety,
		bus:       bus,
		telemetry: telemetry.Noop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run executes state's workflow to completion, returning a channel of
// events (SPEC_FULL.md §4.3 "Streaming contract"). The channel is closed
// when the run terminates (completed, failed, or the context is cancelled).
func (e *Engine) Run(ctx context.Context, state *State) <-chan hooks.Event {
	out := make(chan hooks.Event, 16)
	go func() {
		defer close(out)
		start := time.Now()
		e.loop(ctx, state, out)
		e.emit(ctx, out, WorkflowCompleted{
			Status:          state.Status,
			Iterations:      state.Iteration,
			ToolCallCount:   len(state.ToolCalls),
			DurationSeconds: time.Since(start).Seconds(),
		})
	}()
	return out
}

func (e *Engine) publish(ctx context.Context, ev hooks.Event) {
	if e.bus == nil {
		return
	}
	_ = e.bus.Publish(ctx, ev)
}

func (e *Engine) emit(ctx context.Context, out chan<- hooks.Event, ev hooks.Event) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
	e.publish(ctx, ev)
}

// loop implements the node graph: START -> plan -> check_complexity ->
// {spawn_sub_agents(END) | execute <-> reflect} with a recursion_limit
// safety net over total node transitions, independent of MaxIterations.
func (e *Engine) loop(ctx context.Context, state *State, out chan<- hooks.Event) {
	if err := ctx.Err(); err != nil {
		state.Status = StatusFailed
		state.ShouldContinue = false
		state.recordError("cancelled before start")
		return
	}

	if !e.transition(ctx, state, out, "plan", e.plan) {
		return
	}
	if state.Terminal() {
		return
	}

	if !e.transition(ctx, state, out, "check_complexity", e.checkComplexity) {
		return
	}
	if state.UseSubAgents {
		e.transition(ctx, state, out, "spawn_sub_agents", e.spawnSubAgents)
		return
	}

	for {
		if !e.transition(ctx, state, out, "execute", e.execute) {
			return
		}
		if state.Terminal() {
			return
		}
		if !e.transition(ctx, state, out, "reflect", e.reflect) {
			return
		}
		if !state.ShouldContinue {
			return
		}
		select {
		case <-ctx.Done():
			state.Status = StatusFailed
			state.ShouldContinue = false
			state.recordError("cancelled")
			return
		default:
		}
	}
}

// transition runs one node, enforcing the recursion-limit safety net and
// emitting the node_executed event. Returns false if the run must stop
// (recursion limit exceeded or cancellation).
func (e *Engine) transition(ctx context.Context, state *State, out chan<- hooks.Event, node string, fn func(context.Context, *State, chan<- hooks.Event)) bool {
	state.transitions++
	if state.transitions > state.RecursionLimit {
		err := &agenterrors.RecursionLimitExceeded{LastNode: node, Transitions: state.transitions, Limit: state.RecursionLimit}
		state.Status = StatusFailed
		state.ShouldContinue = false
		state.recordError(err.Error())
		e.telemetry.Metrics.IncCounter("workflow.recursion_limit_exceeded", 1, "node", node)
		return false
	}
	spanCtx, span := e.telemetry.Tracer.Start(ctx, "workflow."+node)
	fn(spanCtx, state, out)
	span.End()

	e.emit(ctx, out, NodeExecuted{
		Node:                   node,
		Iteration:              state.Iteration,
		MaxIterations:          state.MaxIterations,
		Status:                 state.Status,
		ShouldContinue:         state.ShouldContinue,
		TaskDescriptionPreview: previewTask(state.TaskDescription),
	})
	return true
}

type planResponse struct {
	Approach            string   `json:"approach"`
	Steps               []string `json:"steps"`
	EstimatedIterations int      `json:"estimated_iterations"`
	Rationale           string   `json:"rationale"`
}

// plan ensures State.Plan is initialized, idempotently: re-entering plan on
// a state that already carries a Plan is a no-op (the teacher's
// idempotence guarantee, strengthened here since CompletedSteps is always
// already initialized at construction).
func (e *Engine) plan(ctx context.Context, state *State, out chan<- hooks.Event) {
	if e.domain.Name() == "general" && isGreetingLike(state.TaskDescription) {
		state.Status = StatusCompleted
		state.ShouldContinue = false
		state.Result = conversationalReply(state.TaskDescription)
		return
	}
	if state.Plan != nil {
		return
	}
	state.Messages.AddMessage(model.Message{Role: model.RoleSystem, Content: e.domain.SystemPrompt()})
	state.Messages.AddMessage(model.Message{Role: model.RoleUser, Content: "Plan how to accomplish: " + state.TaskDescription})

	raw, err := e.llm.ChatCompletion(ctx, &model.Request{Messages: state.Messages.Messages(), Temperature: 0.2})
	if err != nil {
		state.recordError("plan: llm call failed: " + err.Error())
		state.Plan = &Plan{Approach: "direct execution", Steps: []string{state.TaskDescription}}
		return
	}
	state.Messages.AddMessage(model.Message{Role: model.RoleAssistant, Content: raw})

	var parsed planResponse
	if err := json.Unmarshal([]byte(stripThink(raw)), &parsed); err != nil {
		state.recordError("plan: failed to parse plan json: " + err.Error())
		state.Plan = &Plan{Approach: "direct execution", Steps: []string{state.TaskDescription}}
		return
	}
	state.Plan = &Plan{
		Approach:            parsed.Approach,
		Steps:               parsed.Steps,
		EstimatedIterations: parsed.EstimatedIterations,
		Rationale:           parsed.Rationale,
	}
}

type complexityResponse struct {
	Complexity float64 `json:"complexity"`
}

// checkComplexity sets State.UseSubAgents per SPEC_FULL.md §4.3. Estimator
// failures degrade to false rather than failing the task.
func (e *Engine) checkComplexity(ctx context.Context, state *State, _ chan<- hooks.Event) {
	if !state.SubAgentConfig.Enabled {
		state.UseSubAgents = false
		return
	}
	threshold := state.SubAgentConfig.ComplexityThreshold
	if threshold <= 0 {
		threshold = 0.7
	}
	var complexity float64
	var err error
	if e.complexity != nil {
		complexity, err = e.complexity.EstimateComplexity(ctx, state.TaskDescription)
	} else {
		complexity, err = e.estimateComplexityViaLLM(ctx, state)
	}
	if err != nil {
		state.UseSubAgents = false
		return
	}
	state.UseSubAgents = complexity > threshold
}

func (e *Engine) estimateComplexityViaLLM(ctx context.Context, state *State) (float64, error) {
	raw, err := e.llm.ChatCompletion(ctx, &model.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: `Respond with strict JSON {"complexity": <float 0-1>} estimating how complex the task is.`},
			{Role: model.RoleUser, Content: state.TaskDescription},
		},
		Temperature: 0,
	})
	if err != nil {
		return 0, err
	}
	var parsed complexityResponse
	if err := json.Unmarshal([]byte(stripThink(raw)), &parsed); err != nil {
		return 0, err
	}
	return parsed.Complexity, nil
}

func (e *Engine) spawnSubAgents(ctx context.Context, state *State, _ chan<- hooks.Event) {
	if e.spawner == nil {
		state.Status = StatusFailed
		state.recordError("sub_agents.enabled but no SubAgentSpawner configured")
		state.ShouldContinue = false
		return
	}
	summary, err := e.spawner.ExecuteWithSubAgents(ctx, state.TaskDescription, state.Workspace, state.Extra)
	if err != nil {
		state.Status = StatusFailed
		state.recordError("sub-agent execution failed: " + err.Error())
		state.ShouldContinue = false
		return
	}
	state.Result = summary.Summary
	state.Status = StatusCompleted
	state.ShouldContinue = false
}

type executeResponse struct {
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
	Summary    string         `json:"summary"`
}

const maxConsecutiveParseFailures = 3

// execute implements SPEC_FULL.md §4.3's execute node, including the
// JSON-parse-failure counting (first two recorded, third terminates) and
// the COMPLETE short-circuit.
func (e *Engine) execute(ctx context.Context, state *State, out chan<- hooks.Event) {
	prompt := e.buildExecutePrompt(state)
	state.Messages.AddMessage(model.Message{Role: model.RoleUser, Content: prompt})

	raw, err := e.llm.ChatCompletion(ctx, &model.Request{Messages: state.Messages.Messages(), Temperature: 0.1})
	if err != nil {
		state.recordError("execute: llm call failed: " + err.Error())
		e.publish(ctx, ErrorEvent{Message: err.Error(), Iteration: state.Iteration})
		state.Iteration++
		return
	}
	cot, remainder := extractThink(raw)
	if cot != "" {
		e.publish(ctx, cotEvent{CoT: cot})
	}
	state.Messages.AddMessage(model.Message{Role: model.RoleAssistant, Content: remainder})

	var parsed executeResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(remainder)), &parsed); err != nil {
		state.consecutiveParseFailures++
		state.ToolCalls = append(state.ToolCalls, ToolCallRecord{
			Action:     "JSON_PARSE_ERROR",
			Parameters: map[string]any{"raw": remainder},
			Result:     tools.Result{Success: false, Error: err.Error()},
			Success:    false,
			Iteration:  state.Iteration,
		})
		if state.consecutiveParseFailures >= maxConsecutiveParseFailures {
			state.Status = StatusFailed
			state.ShouldContinue = false
			state.recordError("three consecutive JSON parsing failures in execute")
		}
		state.Iteration++
		return
	}
	state.consecutiveParseFailures = 0

	if e.domain.IsComplete(parsed.Action) {
		state.Status = StatusCompleted
		state.Result = parsed.Summary
		state.ToolCalls = append(state.ToolCalls, ToolCallRecord{
			Action:     parsed.Action,
			Parameters: parsed.Parameters,
			Result:     tools.Result{Success: true, Output: parsed.Summary, Metadata: map[string]any{}},
			Success:    true,
			Iteration:  state.Iteration,
		})
		state.ShouldContinue = false
		state.Iteration++
		return
	}

	params := parsed.Parameters
	if params == nil {
		params = map[string]any{}
	}
	allowed, reason := e.safety.Validate(ctx, parsed.Action, params, state.Workspace)
	var result tools.Result
	if !allowed {
		result = tools.Result{Success: false, Error: reason, Metadata: map[string]any{}}
	} else {
		var dispatchErr error
		result, dispatchErr = e.domain.Dispatch(ctx, e.gateway, parsed.Action, params)
		if dispatchErr != nil {
			result = tools.Result{Success: false, Error: dispatchErr.Error(), Metadata: map[string]any{}}
		}
	}
	if result.Metadata == nil {
		result.Metadata = map[string]any{}
	}

	state.ToolCalls = append(state.ToolCalls, ToolCallRecord{
		Action:     parsed.Action,
		Parameters: params,
		Result:     result,
		Success:    result.Success,
		Iteration:  state.Iteration,
	})
	if result.Success {
		state.CompletedSteps = append(state.CompletedSteps, parsed.Action)
	}
	state.LastToolExecution = &LastToolExecution{
		Action:        parsed.Action,
		ActionDetails: params,
		Result:        result,
		Success:       result.Success,
	}
	e.emit(ctx, out, ToolExecuted{Tool: parsed.Action, Params: params, Result: result, Success: result.Success})

	state.Iteration++
}

// reflect implements SPEC_FULL.md §4.3's reflect node: if already terminal,
// do nothing (the "Cycles between nodes and shared state" design note's
// precedence rule); else enforce MaxIterations; else continue.
func (e *Engine) reflect(_ context.Context, state *State, _ chan<- hooks.Event) {
	if state.Terminal() {
		return
	}
	if state.Iteration >= state.MaxIterations {
		state.Status = StatusFailed
		state.ShouldContinue = false
		state.recordError("max iterations reached")
		return
	}
	state.ShouldContinue = true
}

func (e *Engine) buildExecutePrompt(state *State) string {
	var sb strings.Builder
	sb.WriteString("Available actions:\n")
	for _, spec := range e.domain.ActionSpecs() {
		sb.WriteString(fmt.Sprintf("- %s(%s): %s\n", spec.Name, strings.Join(spec.Parameters, ", "), spec.Description))
	}
	sb.WriteString(fmt.Sprintf("\nIteration %d of %d. Completed steps so far: %v\n", state.Iteration, state.MaxIterations, state.CompletedSteps))
	sb.WriteString(`Respond with strict JSON: {"action": "<ACTION_NAME>", "parameters": {...}, "summary": "<only when action is COMPLETE>"}`)
	return sb.String()
}

// cotEvent carries a chain-of-thought block extracted from an LLM response
// (SPEC_FULL.md §4.8). It is published on the hook bus for the Backend
// Bridge to translate into a "cot" ProgressUpdate; it is not part of the
// client-facing event enumeration in §4.3 because CoT extraction is a
// bridge-layer concern, not a workflow-node transition.
type cotEvent struct {
	CoT string
}

func (cotEvent) EventType() string { return "cot" }

// CoTText exposes the extracted chain-of-thought text to consumers outside
// this package (the Backend Bridge) without exporting the event type
// itself, since nothing outside this package needs to construct one.
func (c cotEvent) CoTText() string { return c.CoT }
