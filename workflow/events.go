package workflow

import "github.com/agentrt/runtime/tools"

// NodeExecuted is emitted as each node completes (SPEC_FULL.md §4.3
// "Streaming contract").
type NodeExecuted struct {
	Node                    string
	Iteration               int
	MaxIterations           int
	Status                  Status
	ShouldContinue          bool
	TaskDescriptionPreview  string
}

func (NodeExecuted) EventType() string { return "node_executed" }

// ToolExecuted is emitted by the execute node right after each tool call.
type ToolExecuted struct {
	Tool    string
	Params  map[string]any
	Result  tools.Result
	Success bool
}

func (ToolExecuted) EventType() string { return "tool_executed" }

// WorkflowCompleted is the terminal event of a run.
type WorkflowCompleted struct {
	Status          Status
	Iterations      int
	ToolCallCount   int
	DurationSeconds float64
}

func (WorkflowCompleted) EventType() string { return "workflow_completed" }

// ErrorEvent surfaces a non-fatal error without terminating the stream.
type ErrorEvent struct {
	Message   string
	Iteration int
}

func (ErrorEvent) EventType() string { return "error" }

func previewTask(task string) string {
	const maxLen = 80
	if len(task) <= maxLen {
		return task
	}
	return task[:maxLen] + "..."
}
