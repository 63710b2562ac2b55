// Package workflow implements the Workflow Engine (SPEC_FULL.md §4.3): a
// domain-polymorphic, iteration-bounded state machine with nodes plan,
// check_complexity, execute, reflect, spawn_sub_agents, cooperative
// streaming of events, and a recursion-limit safety net independent of the
// iteration limit.
package workflow

import (
	"time"

	"github.com/agentrt/runtime/history"
	"github.com/agentrt/runtime/router"
	"github.com/agentrt/runtime/tools"
)

// Status is the Task State's lifecycle status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Plan is produced by the plan node and stored on State.Plan.
type Plan struct {
	Approach            string
	Steps               []string
	EstimatedIterations int
	Rationale           string
}

// ToolCallRecord is one entry in State.ToolCalls.
type ToolCallRecord struct {
	Action     string
	Parameters map[string]any
	Result     tools.Result
	Success    bool
	Iteration  int
}

// ErrorRecord is one entry in State.Errors.
type ErrorRecord struct {
	Message   string
	Timestamp time.Time
	Iteration int
}

// LastToolExecution mirrors the reserved context.last_tool_execution key.
type LastToolExecution struct {
	Action        string
	ActionDetails map[string]any
	Result        tools.Result
	Success       bool
}

// State is the Task State record passed through every node of one workflow
// run (SPEC_FULL.md §3). Reserved context keys are promoted to typed fields
// (see the "State as an open mapping" design note); Extra holds anything
// genuinely free-form.
type State struct {
	TaskDescription string
	TaskID          string
	Domain          router.Domain
	Workspace       string

	Iteration      int
	MaxIterations  int
	RecursionLimit int

	Status         Status
	ShouldContinue bool

	Plan              *Plan
	CompletedSteps    []string
	LastToolExecution *LastToolExecution
	SubAgentConfig    SubAgentConfig

	ToolCalls []ToolCallRecord
	Errors    []ErrorRecord

	Messages *history.History
	Result   string

	UseSubAgents bool

	Extra map[string]any

	consecutiveParseFailures int
	transitions              int
}

// SubAgentConfig mirrors the reserved context.sub_agent_config key.
type SubAgentConfig struct {
	Enabled              bool
	ComplexityThreshold  float64
	MaxConcurrent        int
}

// NewState constructs a Task State with every reserved field defaulted, per
// the "State as an open mapping" design note: CompletedSteps is initialized
// to an empty (non-nil) slice here, once, at construction — never lazily by
// a node — so invariant 4 of SPEC_FULL.md §3 holds by construction rather
// than by convention.
func NewState(taskID, taskDescription string, domain router.Domain, workspace string, maxIterations, recursionLimit int, maxPromptTokens int) *State {
	effectiveRecursionLimit := recursionLimit
	if min := maxIterations * 6; effectiveRecursionLimit < min {
		effectiveRecursionLimit = min
	}
	return &State{
		TaskDescription: taskDescription,
		TaskID:          taskID,
		Domain:          domain,
		Workspace:       workspace,
		MaxIterations:   maxIterations,
		RecursionLimit:  effectiveRecursionLimit,
		Status:          StatusPending,
		ShouldContinue:  true,
		CompletedSteps:  []string{},
		ToolCalls:       []ToolCallRecord{},
		Errors:          []ErrorRecord{},
		Messages:        history.New(maxPromptTokens),
		Extra:           map[string]any{},
	}
}

// Terminal reports whether the task has reached a terminal status
// (completed or failed), per invariant 2 of SPEC_FULL.md §3.
func (s *State) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// recordError appends an error entry tagged with the current iteration.
func (s *State) recordError(message string) {
	s.Errors = append(s.Errors, ErrorRecord{Message: message, Timestamp: time.Now(), Iteration: s.Iteration})
}
