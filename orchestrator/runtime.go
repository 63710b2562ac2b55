// Package orchestrator implements the Orchestrator (SPEC_FULL.md §4.7): the
// top-level Runtime facade that classifies a task, selects the matching
// workflow domain, and streams its events through to the Backend Bridge.
// Grounded on the teacher's Options/functional-options/New() construction
// shape (agents/runtime/runtime.go) and, per the "Global mutable state"
// design note, built as a process-scoped handle threaded explicitly into
// every task run rather than read from a package global.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentrt/runtime/hooks"
	"github.com/agentrt/runtime/router"
	"github.com/agentrt/runtime/telemetry"
	"github.com/agentrt/runtime/tools"
	"github.com/agentrt/runtime/workflow"
)

// Event mirrors the orchestrator-level event enumeration: "classified",
// then every workflow event, then the terminal "workflow_completed" (which
// is itself one of the forwarded workflow events).
type Event struct {
	Type string
	Data map[string]any
}

func (Event) EventType() string { return "orchestrator_event" }

// Result is execute_task's collected, non-streaming return value.
type Result struct {
	Domain     router.Domain
	Confidence float64
	Status     workflow.Status
	Output     string
	Errors     []string
}

// HealthProber is implemented by *model.DualClient. It is declared here,
// narrowly, so the orchestrator can start endpoint health probing (SPEC_FULL
// §4.1 point 4) without importing package model directly.
type HealthProber interface {
	StartHealthProbing(ctx context.Context, probe func(ctx context.Context, url string) error)
}

// Runtime is the process-scoped handle holding every long-lived
// collaborator: the LLM client, the Intent Router, the registry of
// per-domain workflows (a fresh workflow.Engine is built for each task run),
// the hook bus, and telemetry. Construct once at
// startup with New; tests construct a fresh Runtime per case.
type Runtime struct {
	llm       workflow.LLM
	router    *router.Router
	gateway   tools.Gateway
	safety    tools.SafetyChecker
	bus       *hooks.Bus
	telemetry telemetry.Handles
	spawner   workflow.SubAgentSpawner
	domains   map[router.Domain]workflow.Domain

	healthProber HealthProber
	probeFunc    func(ctx context.Context, url string) error

	maxIterations    int
	recursionLimit   int
	maxPromptTokens  int
	subAgentsEnabled bool
	complexityThresh float64
}

// Option configures a Runtime at construction.
type Option func(*Runtime)

func WithSubAgentSpawner(s workflow.SubAgentSpawner) Option {
	return func(r *Runtime) { r.spawner = s }
}
func WithTelemetry(h telemetry.Handles) Option { return func(r *Runtime) { r.telemetry = h } }
func WithMaxIterations(n int) Option           { return func(r *Runtime) { r.maxIterations = n } }
func WithRecursionLimit(n int) Option          { return func(r *Runtime) { r.recursionLimit = n } }
func WithMaxPromptTokens(n int) Option         { return func(r *Runtime) { r.maxPromptTokens = n } }
func WithSubAgentsEnabled(enabled bool) Option { return func(r *Runtime) { r.subAgentsEnabled = enabled } }
func WithComplexityThreshold(t float64) Option { return func(r *Runtime) { r.complexityThresh = t } }

// WithHealthProbing wires llm's periodic endpoint probe loop (SPEC_FULL.md
// §4.1 point 4). prober is typically the same *model.DualClient passed as
// llm to New; probe is usually model.DefaultProbe(httpClient). Call
// Runtime.StartHealthProbing once at process startup to actually launch it.
func WithHealthProbing(prober HealthProber, probe func(ctx context.Context, url string) error) Option {
	return func(r *Runtime) {
		r.healthProber = prober
		r.probeFunc = probe
	}
}

// New constructs a Runtime wired to the four standard domains (coding,
// research, data_analysis, general). llm is shared by the Intent Router and
// every domain's workflow engine — in production this is a *model.DualClient.
func New(llm workflow.LLM, classifier *router.Router, gw tools.Gateway, safety tools.SafetyChecker, opts ...Option) *Runtime {
	r := &Runtime{
		llm:              llm,
		router:           classifier,
		gateway:          gw,
		safety:           safety,
		bus:              hooks.New(),
		telemetry:        telemetry.Noop(),
		maxIterations:    30,
		recursionLimit:   180,
		maxPromptTokens:  8000,
		complexityThresh: 0.7,
	}
	for _, o := range opts {
		o(r)
	}
	r.domains = map[router.Domain]workflow.Domain{
		router.DomainCoding:       workflow.NewCodingDomain(),
		router.DomainResearch:     workflow.NewResearchDomain(),
		router.DomainDataAnalysis: workflow.NewDataAnalysisDomain(),
		router.DomainGeneral:      workflow.NewGeneralDomain(),
	}
	return r
}

// Bus exposes the shared hook bus so callers can register the Backend
// Bridge (or any other hooks.Subscriber) before running tasks.
func (r *Runtime) Bus() *hooks.Bus { return r.bus }

// StartHealthProbing launches the configured LLM client's periodic endpoint
// probe loop, if WithHealthProbing configured one. Safe to call once at
// process startup; probing stops when ctx is cancelled. A no-op otherwise.
func (r *Runtime) StartHealthProbing(ctx context.Context) {
	if r.healthProber != nil && r.probeFunc != nil {
		r.healthProber.StartHealthProbing(ctx, r.probeFunc)
	}
}

// ExecuteTaskStream implements execute_task_stream: classify (unless
// domainOverride is non-empty), select the workflow, and forward a
// "classified" event followed by every workflow event.
func (r *Runtime) ExecuteTaskStream(ctx context.Context, task, workspace string, domainOverride router.Domain) (<-chan Event, error) {
	out := make(chan Event, 16)

	classification, err := r.classify(ctx, task, domainOverride)
	if err != nil {
		close(out)
		return out, err
	}
	domain, ok := r.domains[classification.Domain]
	if !ok {
		close(out)
		return out, fmt.Errorf("orchestrator: no workflow registered for domain %q", classification.Domain)
	}

	state := workflow.NewState(uuid.NewString(), task, classification.Domain, workspace,
		r.maxIterations, r.recursionLimit, r.maxPromptTokens)
	state.SubAgentConfig = workflow.SubAgentConfig{
		Enabled:             r.subAgentsEnabled && classification.RequiresSubAgents,
		ComplexityThreshold: r.complexityThresh,
		MaxConcurrent:       4,
	}

	engOpts := []workflow.Option{workflow.WithTelemetry(r.telemetry)}
	if r.spawner != nil {
		engOpts = append(engOpts, workflow.WithSpawner(r.spawner))
	}
	eng := workflow.New(domain, r.llm, r.gateway, r.safety, r.bus, engOpts...)

	go func() {
		defer close(out)
		out <- Event{Type: "classified", Data: map[string]any{
			"domain":               string(classification.Domain),
			"confidence":           classification.Confidence,
			"reasoning":            classification.Reasoning,
			"estimated_complexity": string(classification.EstimatedComplexity),
		}}
		for ev := range eng.Run(ctx, state) {
			out <- Event{Type: ev.EventType(), Data: eventData(ev)}
		}
	}()
	return out, nil
}

// ExecuteTask implements execute_task: collects ExecuteTaskStream and
// returns the final event payload.
func (r *Runtime) ExecuteTask(ctx context.Context, task, workspace string, domainOverride router.Domain) (Result, error) {
	events, err := r.ExecuteTaskStream(ctx, task, workspace, domainOverride)
	if err != nil {
		return Result{}, err
	}
	result := Result{Domain: domainOverride}
	for ev := range events {
		switch ev.Type {
		case "classified":
			if d, ok := ev.Data["domain"].(string); ok {
				result.Domain = router.Domain(d)
			}
			if c, ok := ev.Data["confidence"].(float64); ok {
				result.Confidence = c
			}
		case "workflow_completed":
			if s, ok := ev.Data["status"].(string); ok {
				result.Status = workflow.Status(s)
			}
		}
	}
	return result, nil
}

func (r *Runtime) classify(ctx context.Context, task string, domainOverride router.Domain) (router.Classification, error) {
	if domainOverride != "" {
		return router.Classification{Domain: domainOverride, Confidence: 1, Reasoning: "domain_override"}, nil
	}
	return r.router.Classify(ctx, task)
}

func eventData(ev hooks.Event) map[string]any {
	switch e := ev.(type) {
	case workflow.NodeExecuted:
		return map[string]any{
			"node": e.Node, "iteration": e.Iteration, "max_iterations": e.MaxIterations,
			"status": string(e.Status), "should_continue": e.ShouldContinue,
		}
	case workflow.ToolExecuted:
		return map[string]any{"tool": e.Tool, "success": e.Success, "params": e.Params}
	case workflow.WorkflowCompleted:
		return map[string]any{
			"status": string(e.Status), "iterations": e.Iterations,
			"tool_call_count": e.ToolCallCount, "duration_seconds": e.DurationSeconds,
		}
	case workflow.ErrorEvent:
		return map[string]any{"message": e.Message, "iteration": e.Iteration}
	default:
		return map[string]any{}
	}
}
