// Package subagent implements the Sub-Agent Manager and Parallel Executor
// (SPEC_FULL.md §4.5): it decomposes a task, spawns one tool-restricted
// workflow.Engine per subtask, schedules them honoring dependency order with
// bounded concurrency, and aggregates their results. Grounded on the
// teacher's in-process nested-run-tracking idiom (runtime.ExecuteAgentInline)
// adapted to a plain context.Context + sync.WaitGroup + buffered-semaphore
// scheduler rather than a durable external workflow engine.
package subagent

import "github.com/agentrt/runtime/decomposer"

// Spec describes one of the twelve sub-agent specializations: its system
// prompt, curated tool allowlist, and independent resource budget.
type Spec struct {
	Type           decomposer.AgentType
	SystemPrompt   string
	ActionAllowlist []string
	MaxIterations  int
	TimeoutSeconds int
}

// action name constants shared with the restricted domain in domain.go.
const (
	actionReadFile     = "READ_FILE"
	actionWriteFile    = "WRITE_FILE"
	actionListDir      = "LIST_DIRECTORY"
	actionSearch       = "SEARCH"
	actionRunCommand   = "RUN_COMMAND"
	actionComplete     = "COMPLETE"
)

var registry = map[decomposer.AgentType]Spec{
	decomposer.AgentCodeReader: {
		Type:            decomposer.AgentCodeReader,
		SystemPrompt:    "You read and summarize code. You cannot write files.",
		ActionAllowlist: []string{actionReadFile, actionListDir, actionSearch, actionComplete},
		MaxIterations:   15, TimeoutSeconds: 120,
	},
	decomposer.AgentCodeWriter: {
		Type:            decomposer.AgentCodeWriter,
		SystemPrompt:    "You write and modify code files based on instructions.",
		ActionAllowlist: []string{actionReadFile, actionWriteFile, actionListDir, actionComplete},
		MaxIterations:   20, TimeoutSeconds: 180,
	},
	decomposer.AgentCodeTester: {
		Type:            decomposer.AgentCodeTester,
		SystemPrompt:    "You run a project's test suite and report results. You cannot write files.",
		ActionAllowlist: []string{actionReadFile, actionRunCommand, actionListDir, actionComplete},
		MaxIterations:   15, TimeoutSeconds: 300,
	},
	decomposer.AgentDocSearcher: {
		Type:            decomposer.AgentDocSearcher,
		SystemPrompt:    "You search documents for relevant passages.",
		ActionAllowlist: []string{actionSearch, actionReadFile, actionListDir, actionComplete},
		MaxIterations:   15, TimeoutSeconds: 120,
	},
	decomposer.AgentInfoGatherer: {
		Type:            decomposer.AgentInfoGatherer,
		SystemPrompt:    "You gather and synthesize information from the workspace.",
		ActionAllowlist: []string{actionReadFile, actionListDir, actionSearch, actionComplete},
		MaxIterations:   15, TimeoutSeconds: 120,
	},
	decomposer.AgentReportWriter: {
		Type:            decomposer.AgentReportWriter,
		SystemPrompt:    "You write a final report summarizing findings. You cannot run commands.",
		ActionAllowlist: []string{actionReadFile, actionWriteFile, actionComplete},
		MaxIterations:   10, TimeoutSeconds: 120,
	},
	decomposer.AgentDataLoader: {
		Type:            decomposer.AgentDataLoader,
		SystemPrompt:    "You locate and load dataset files. You cannot write or run commands.",
		ActionAllowlist: []string{actionReadFile, actionListDir, actionComplete},
		MaxIterations:   10, TimeoutSeconds: 120,
	},
	decomposer.AgentDataAnalyzer: {
		Type:            decomposer.AgentDataAnalyzer,
		SystemPrompt:    "You run analysis commands over loaded datasets and report findings.",
		ActionAllowlist: []string{actionReadFile, actionRunCommand, actionComplete},
		MaxIterations:   20, TimeoutSeconds: 300,
	},
	decomposer.AgentDataVisualizer: {
		Type:            decomposer.AgentDataVisualizer,
		SystemPrompt:    "You produce chart/report artifacts from analyzed data.",
		ActionAllowlist: []string{actionReadFile, actionWriteFile, actionRunCommand, actionComplete},
		MaxIterations:   15, TimeoutSeconds: 180,
	},
	decomposer.AgentFileOrganizer: {
		Type:            decomposer.AgentFileOrganizer,
		SystemPrompt:    "You organize files in the workspace (move/rename via write, never execute commands).",
		ActionAllowlist: []string{actionReadFile, actionWriteFile, actionListDir, actionComplete},
		MaxIterations:   15, TimeoutSeconds: 120,
	},
	decomposer.AgentTaskExecutor: {
		Type:            decomposer.AgentTaskExecutor,
		SystemPrompt:    "You execute a general task using any available action.",
		ActionAllowlist: []string{actionReadFile, actionWriteFile, actionListDir, actionRunCommand, actionComplete},
		MaxIterations:   20, TimeoutSeconds: 180,
	},
	decomposer.AgentCommandRunner: {
		Type:            decomposer.AgentCommandRunner,
		SystemPrompt:    "You run shell commands to accomplish the task. You cannot read or write files directly.",
		ActionAllowlist: []string{actionRunCommand, actionComplete},
		MaxIterations:   10, TimeoutSeconds: 180,
	},
}

// SpecFor returns the registered Spec for an agent type, or the
// task_executor spec (the least-restricted, safest default) if unknown.
func SpecFor(t decomposer.AgentType) Spec {
	if s, ok := registry[t]; ok {
		return s
	}
	return registry[decomposer.AgentTaskExecutor]
}
