// Package decomposer implements the Task Decomposer (SPEC_FULL.md §4.4): an
// LLM call constrained to a strict JSON schema that breaks a task into
// dependency-aware subtasks, each assigned one of twelve agent
// specializations, validated for unknown dependency IDs and dependency
// cycles before being handed to the Sub-Agent Manager. Grounded on the same
// schema-validated-JSON-contract pattern as package router, plus a plain
// Kahn's-algorithm topological sort.
package decomposer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// AgentType is one of the twelve sub-agent specializations (SPEC_FULL.md
// §4.5), grouped into four families.
type AgentType string

const (
	AgentCodeReader    AgentType = "code_reader"
	AgentCodeWriter    AgentType = "code_writer"
	AgentCodeTester    AgentType = "code_tester"
	AgentDocSearcher   AgentType = "document_searcher"
	AgentInfoGatherer  AgentType = "information_gatherer"
	AgentReportWriter  AgentType = "report_writer"
	AgentDataLoader    AgentType = "data_loader"
	AgentDataAnalyzer  AgentType = "data_analyzer"
	AgentDataVisualizer AgentType = "data_visualizer"
	AgentFileOrganizer AgentType = "file_organizer"
	AgentTaskExecutor  AgentType = "task_executor"
	AgentCommandRunner AgentType = "command_runner"
)

var validAgentTypes = map[AgentType]bool{
	AgentCodeReader: true, AgentCodeWriter: true, AgentCodeTester: true,
	AgentDocSearcher: true, AgentInfoGatherer: true, AgentReportWriter: true,
	AgentDataLoader: true, AgentDataAnalyzer: true, AgentDataVisualizer: true,
	AgentFileOrganizer: true, AgentTaskExecutor: true, AgentCommandRunner: true,
}

// Strategy names how the Parallel Executor should schedule subtasks.
type Strategy string

const (
	StrategyParallel   Strategy = "PARALLEL"
	StrategySequential Strategy = "SEQUENTIAL"
	StrategyMixed      Strategy = "MIXED"
)

// Subtask is one unit of work produced by decomposition.
type Subtask struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	AgentType   AgentType `json:"agent_type"`
	Priority    int       `json:"priority"`
	DependsOn   []string  `json:"depends_on"`
}

// Decomposition is the decomposer's return shape.
type Decomposition struct {
	RequiresDecomposition bool      `json:"requires_decomposition"`
	Complexity            float64   `json:"complexity"`
	Subtasks              []Subtask `json:"subtasks"`
	ExecutionStrategy     Strategy  `json:"execution_strategy"`
}

const schemaJSON = `{
  "type": "object",
  "required": ["requires_decomposition", "complexity", "subtasks", "execution_strategy"],
  "properties": {
    "requires_decomposition": {"type": "boolean"},
    "complexity": {"type": "number", "minimum": 0, "maximum": 1},
    "execution_strategy": {"enum": ["PARALLEL", "SEQUENTIAL", "MIXED"]},
    "subtasks": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "description", "agent_type", "priority"],
        "properties": {
          "id": {"type": "string"},
          "description": {"type": "string"},
          "priority": {"type": "integer", "minimum": 1, "maximum": 10},
          "agent_type": {"enum": [
            "code_reader", "code_writer", "code_tester",
            "document_searcher", "information_gatherer", "report_writer",
            "data_loader", "data_analyzer", "data_visualizer",
            "file_organizer", "task_executor", "command_runner"
          ]},
          "depends_on": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`

// Decomposer produces validated Decompositions, degrading to a single-
// subtask fallback on any LLM or validation failure.
type Decomposer struct {
	llm    LLM
	schema *jsonschema.Schema
}

// LLM is the narrow chat-completions surface this package needs; it mirrors
// workflow.LLM's shape without importing package model to avoid a needless
// dependency edge (a decomposer caller supplies whatever concrete client
// satisfies this one-method interface).
type LLM interface {
	ChatCompletion(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// New compiles the decomposition schema once at construction.
func New(llm LLM) (*Decomposer, error) {
	compiler := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("decomposer: invalid embedded schema: %w", err)
	}
	const resourceURI = "agentrt://decomposer/decomposition.schema.json"
	if err := compiler.AddResource(resourceURI, doc); err != nil {
		return nil, fmt.Errorf("decomposer: add schema resource: %w", err)
	}
	schema, err := compiler.Compile(resourceURI)
	if err != nil {
		return nil, fmt.Errorf("decomposer: compile schema: %w", err)
	}
	return &Decomposer{llm: llm, schema: schema}, nil
}

const systemPrompt = `You decompose a task into dependency-aware subtasks. Respond with strict JSON
matching the schema: requires_decomposition (bool), complexity (0-1), subtasks (array of
{id, description, agent_type, priority, depends_on}), execution_strategy (PARALLEL|SEQUENTIAL|MIXED).
agent_type must be one of: code_reader, code_writer, code_tester, document_searcher,
information_gatherer, report_writer, data_loader, data_analyzer, data_visualizer, file_organizer,
task_executor, command_runner.`

// Decompose runs the LLM decomposition call, validates the result against
// the compiled schema, checks for unknown dependency IDs and cycles, and
// falls back to a single subtask mirroring the original task on any
// failure (SPEC_FULL.md §4.4 "safe fallback").
func (d *Decomposer) Decompose(ctx context.Context, task string) Decomposition {
	raw, err := d.llm.ChatCompletion(ctx, systemPrompt, task)
	if err != nil {
		return fallback(task)
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return fallback(task)
	}
	if err := d.schema.Validate(doc); err != nil {
		return fallback(task)
	}

	var result Decomposition
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return fallback(task)
	}
	for i := range result.Subtasks {
		if !validAgentTypes[result.Subtasks[i].AgentType] {
			return fallback(task)
		}
	}
	if err := validateDependencies(result.Subtasks); err != nil {
		return fallback(task)
	}
	return result
}

func fallback(task string) Decomposition {
	return Decomposition{
		RequiresDecomposition: false,
		Complexity:            0,
		ExecutionStrategy:     StrategySequential,
		Subtasks: []Subtask{
			{ID: "subtask-1", Description: task, AgentType: AgentTaskExecutor, Priority: 1},
		},
	}
}

// validateDependencies rejects unknown dependency IDs and cycles, via a
// plain Kahn's-algorithm topological sort over the dependency graph.
func validateDependencies(subtasks []Subtask) error {
	ids := make(map[string]bool, len(subtasks))
	for _, s := range subtasks {
		ids[s.ID] = true
	}
	graph := make(map[string][]string, len(subtasks))
	indegree := make(map[string]int, len(subtasks))
	for _, s := range subtasks {
		indegree[s.ID] = 0
	}
	for _, s := range subtasks {
		for _, dep := range s.DependsOn {
			if !ids[dep] {
				return fmt.Errorf("decomposer: subtask %q depends on unknown id %q", s.ID, dep)
			}
			graph[dep] = append(graph[dep], s.ID)
			indegree[s.ID]++
		}
	}

	var queue []string
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range graph[n] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited != len(subtasks) {
		return fmt.Errorf("decomposer: dependency cycle detected among %d subtasks", len(subtasks)-visited)
	}
	return nil
}
