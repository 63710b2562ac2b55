package decomposer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	reply string
	err   error
}

func (f fakeLLM) ChatCompletion(_ context.Context, _, _ string) (string, error) {
	return f.reply, f.err
}

func TestDecompose_ValidResponse(t *testing.T) {
	reply := `{
		"requires_decomposition": true,
		"complexity": 0.8,
		"execution_strategy": "PARALLEL",
		"subtasks": [
			{"id": "s1", "description": "read the repo", "agent_type": "code_reader", "priority": 5, "depends_on": []},
			{"id": "s2", "description": "write tests", "agent_type": "code_tester", "priority": 3, "depends_on": ["s1"]}
		]
	}`
	d, err := New(fakeLLM{reply: reply})
	require.NoError(t, err)

	result := d.Decompose(context.Background(), "add tests to the repo")
	assert.True(t, result.RequiresDecomposition)
	assert.Equal(t, StrategyParallel, result.ExecutionStrategy)
	require.Len(t, result.Subtasks, 2)
	assert.Equal(t, AgentCodeReader, result.Subtasks[0].AgentType)
}

func TestDecompose_FallsBackOnLLMError(t *testing.T) {
	d, err := New(fakeLLM{err: assertError{}})
	require.NoError(t, err)

	result := d.Decompose(context.Background(), "do the thing")
	assert.False(t, result.RequiresDecomposition)
	require.Len(t, result.Subtasks, 1)
	assert.Equal(t, AgentTaskExecutor, result.Subtasks[0].AgentType)
}

type assertError struct{}

func (assertError) Error() string { return "llm unavailable" }

func TestDecompose_FallsBackOnMalformedJSON(t *testing.T) {
	d, err := New(fakeLLM{reply: "not json at all"})
	require.NoError(t, err)

	result := d.Decompose(context.Background(), "task")
	require.Len(t, result.Subtasks, 1)
	assert.Equal(t, "subtask-1", result.Subtasks[0].ID)
}

func TestDecompose_FallsBackOnUnknownAgentType(t *testing.T) {
	reply := `{
		"requires_decomposition": true,
		"complexity": 0.5,
		"execution_strategy": "SEQUENTIAL",
		"subtasks": [{"id": "s1", "description": "x", "agent_type": "not_a_real_type", "priority": 1, "depends_on": []}]
	}`
	d, err := New(fakeLLM{reply: reply})
	require.NoError(t, err)

	result := d.Decompose(context.Background(), "task")
	assert.False(t, result.RequiresDecomposition)
}

func TestValidateDependencies_UnknownDependencyRejected(t *testing.T) {
	err := validateDependencies([]Subtask{
		{ID: "s1", DependsOn: []string{"ghost"}},
	})
	assert.Error(t, err)
}

func TestValidateDependencies_CycleRejected(t *testing.T) {
	err := validateDependencies([]Subtask{
		{ID: "s1", DependsOn: []string{"s2"}},
		{ID: "s2", DependsOn: []string{"s1"}},
	})
	assert.Error(t, err)
}

func TestValidateDependencies_AcyclicAccepted(t *testing.T) {
	err := validateDependencies([]Subtask{
		{ID: "s1"},
		{ID: "s2", DependsOn: []string{"s1"}},
		{ID: "s3", DependsOn: []string{"s1", "s2"}},
	})
	assert.NoError(t, err)
}
