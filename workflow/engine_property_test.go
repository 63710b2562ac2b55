package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/agentrt/runtime/hooks"
)

// TestProperty_IterationMonotonicAndBoundedByMaxIterations verifies the
// universal invariant (SPEC_FULL.md §3 invariant 1 and the MaxIterations
// boundary): for any MaxIterations budget and any sequence of tool-call
// outcomes that never emits COMPLETE, the engine terminates with Iteration
// exactly equal to MaxIterations and never exceeds it.
func TestProperty_IterationMonotonicAndBoundedByMaxIterations(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("iteration equals MaxIterations when the model never completes", prop.ForAll(
		func(maxIterations int) bool {
			replies := []llmReply{ok(`{"approach":"a","steps":["x"],"estimated_iterations":1,"rationale":"r"}`)}
			for i := 0; i < maxIterations+5; i++ {
				replies = append(replies, ok(fmt.Sprintf(`{"action":"READ_FILE","parameters":{"path":"f%d.go"}}`, i)))
			}
			llm := &scriptedLLM{replies: replies}
			eng := New(NewGeneralDomain(), llm, stubGateway{}, allowAllSafety{}, hooks.New())
			state := newGeneralState("endless task")
			state.MaxIterations = maxIterations
			state.RecursionLimit = (maxIterations + 5) * 6

			drain(eng.Run(context.Background(), state))

			return state.Status == StatusFailed && state.Iteration == maxIterations
		},
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

// TestProperty_ParseFailuresTerminateAtExactlyThree verifies the universal
// invariant bounding consecutiveParseFailures: for any number of leading
// unparseable execute responses, the engine terminates exactly on the third
// consecutive failure, never earlier, never later.
func TestProperty_ParseFailuresTerminateAtExactlyThree(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("three consecutive parse failures always terminate the run", prop.ForAll(
		func(junkLen int) bool {
			replies := []llmReply{ok(`{"approach":"a","steps":["x"],"estimated_iterations":1,"rationale":"r"}`)}
			for i := 0; i < 3; i++ {
				replies = append(replies, ok(fmt.Sprintf("not json %d %s", i, randomJunk(junkLen))))
			}
			llm := &scriptedLLM{replies: replies}
			eng := New(NewGeneralDomain(), llm, stubGateway{}, allowAllSafety{}, hooks.New())
			state := newGeneralState("junk responses")
			state.MaxIterations = 50

			drain(eng.Run(context.Background(), state))

			return state.Status == StatusFailed && state.Iteration == 3
		},
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}

// TestProperty_RecursionLimitIndependentOfMaxIterations verifies the
// recursion-limit safety net fails the run with a recorded error regardless
// of how large MaxIterations is configured.
func TestProperty_RecursionLimitIndependentOfMaxIterations(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("recursion limit fires regardless of a much larger MaxIterations", prop.ForAll(
		func(recursionLimit int) bool {
			replies := []llmReply{ok(`{"approach":"a","steps":["x"],"estimated_iterations":1,"rationale":"r"}`)}
			for i := 0; i < recursionLimit+10; i++ {
				replies = append(replies, ok(fmt.Sprintf(`{"action":"READ_FILE","parameters":{"path":"f%d.go"}}`, i)))
			}
			llm := &scriptedLLM{replies: replies}
			eng := New(NewGeneralDomain(), llm, stubGateway{}, allowAllSafety{}, hooks.New())
			state := newGeneralState("runaway")
			state.MaxIterations = 100000
			state.RecursionLimit = recursionLimit

			drain(eng.Run(context.Background(), state))

			return state.Status == StatusFailed && len(state.Errors) > 0
		},
		gen.IntRange(2, 30),
	))

	properties.TestingRun(t)
}

func randomJunk(n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte('a' + (i % 26))
	}
	return string(out)
}
