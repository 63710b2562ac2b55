package subagent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentrt/runtime/decomposer"
)

func TestSpecFor_KnownAgentType(t *testing.T) {
	s := SpecFor(decomposer.AgentCodeReader)
	assert.Equal(t, decomposer.AgentCodeReader, s.Type)
	assert.NotContains(t, s.ActionAllowlist, actionWriteFile, "code_reader must not be able to write files")
}

func TestSpecFor_UnknownAgentTypeDefaultsToTaskExecutor(t *testing.T) {
	s := SpecFor(decomposer.AgentType("not_a_real_type"))
	assert.Equal(t, decomposer.AgentTaskExecutor, s.Type)
}

func TestSpecFor_CommandRunnerCannotTouchFiles(t *testing.T) {
	s := SpecFor(decomposer.AgentCommandRunner)
	assert.NotContains(t, s.ActionAllowlist, actionReadFile)
	assert.NotContains(t, s.ActionAllowlist, actionWriteFile)
	assert.Contains(t, s.ActionAllowlist, actionRunCommand)
}

func TestAllRegisteredSpecsIncludeComplete(t *testing.T) {
	for _, agentType := range []decomposer.AgentType{
		decomposer.AgentCodeReader, decomposer.AgentCodeWriter, decomposer.AgentCodeTester,
		decomposer.AgentTaskExecutor, decomposer.AgentCommandRunner,
	} {
		s := SpecFor(agentType)
		assert.Contains(t, s.ActionAllowlist, actionComplete, "%s must always be able to terminate", agentType)
		assert.Greater(t, s.MaxIterations, 0)
		assert.Greater(t, s.TimeoutSeconds, 0)
	}
}
