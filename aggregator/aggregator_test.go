package aggregator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate_ConcatenateJoinsSuccessfulOutputsOnly(t *testing.T) {
	results := []SubtaskResult{
		{ID: "a", Output: "alpha", Success: true, DurationSeconds: 1},
		{ID: "b", Output: "should be dropped", Success: false, Error: "boom", DurationSeconds: 2},
		{ID: "c", Output: "gamma", Success: true, DurationSeconds: 1},
	}
	out, err := Aggregate(context.Background(), results, StrategyConcatenate, 5*time.Second, false, nil)
	require.NoError(t, err)

	assert.False(t, out.Success)
	assert.Equal(t, 2, out.SuccessCount)
	assert.Equal(t, 1, out.FailureCount)
	assert.Equal(t, "alpha\n---\ngamma", out.Summary)
	assert.Equal(t, []string{"b: boom"}, out.Errors)
	assert.Equal(t, 5.0, out.TotalDurationSeconds, "parallel run uses wall clock, not summed durations")
}

func TestAggregate_SequentialSumsDurations(t *testing.T) {
	results := []SubtaskResult{
		{ID: "a", Output: "x", Success: true, DurationSeconds: 1.5},
		{ID: "b", Output: "y", Success: true, DurationSeconds: 2.5},
	}
	out, err := Aggregate(context.Background(), results, StrategyConcatenate, 999*time.Second, true, nil)
	require.NoError(t, err)
	assert.Equal(t, 4.0, out.TotalDurationSeconds)
}

func TestAggregate_List(t *testing.T) {
	results := []SubtaskResult{
		{ID: "a", Output: "ok output", Success: true},
		{ID: "b", Output: "", Success: false, Error: "timeout"},
	}
	out, err := Aggregate(context.Background(), results, StrategyList, 0, true, nil)
	require.NoError(t, err)
	assert.Contains(t, out.Summary, "[a] ok output (ok)")
	assert.Contains(t, out.Summary, "[b]  (failed: timeout)")
}

func TestAggregate_MergeJSONDeepMergesAndConcatenatesArrays(t *testing.T) {
	results := []SubtaskResult{
		{ID: "a", Success: true, Output: `{"files":["a.go"],"summary":{"count":1}}`},
		{ID: "b", Success: true, Output: `{"files":["b.go"],"summary":{"count":2,"errors":0}}`},
	}
	out, err := Aggregate(context.Background(), results, StrategyMergeJSON, 0, true, nil)
	require.NoError(t, err)

	var merged map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.Summary), &merged))
	files := merged["files"].([]any)
	assert.ElementsMatch(t, []any{"a.go", "b.go"}, files)

	summary := merged["summary"].(map[string]any)
	assert.Equal(t, float64(2), summary["count"], "last writer wins on scalar conflict")
	assert.Equal(t, float64(0), summary["errors"])
}

func TestAggregate_MergeJSONRejectsNonObjectOutput(t *testing.T) {
	results := []SubtaskResult{{ID: "a", Success: true, Output: `not json`}}
	_, err := Aggregate(context.Background(), results, StrategyMergeJSON, 0, true, nil)
	assert.Error(t, err)
}

type fakeSummarizer struct{ reply string }

func (f fakeSummarizer) ChatCompletion(_ context.Context, _, _ string) (string, error) {
	return f.reply, nil
}

func TestAggregate_SummarizeUsesLLMWhenProvided(t *testing.T) {
	results := []SubtaskResult{{ID: "a", Output: "x", Success: true}}
	out, err := Aggregate(context.Background(), results, StrategySummarize, 0, true, fakeSummarizer{reply: "one-line summary"})
	require.NoError(t, err)
	assert.Equal(t, "one-line summary", out.Summary)
}

func TestAggregate_SummarizeFallsBackToConcatenateWithoutLLM(t *testing.T) {
	results := []SubtaskResult{{ID: "a", Output: "x", Success: true}}
	out, err := Aggregate(context.Background(), results, StrategySummarize, 0, true, nil)
	require.NoError(t, err)
	assert.Equal(t, "x", out.Summary)
}
