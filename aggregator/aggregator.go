// Package aggregator implements the Result Aggregator (SPEC_FULL.md §4.6):
// merges per-subtask results from the Sub-Agent Manager under one of four
// strategies and produces the manager's final return shape. New code; the
// JSON deep-merge is a plain recursive map walk, and SUMMARIZE reuses
// whatever LLM client the caller already has for one bounded extra call.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Strategy names one of the four merge strategies.
type Strategy string

const (
	StrategyConcatenate Strategy = "CONCATENATE"
	StrategySummarize   Strategy = "SUMMARIZE"
	StrategyMergeJSON   Strategy = "MERGE_JSON"
	StrategyList        Strategy = "LIST"
)

// SubtaskResult is one subtask's outcome, as produced by the Parallel
// Executor.
type SubtaskResult struct {
	ID              string
	Description     string
	Output          string
	Success         bool
	Error           string
	DurationSeconds float64
}

// Result is the Sub-Agent Manager's return shape.
type Result struct {
	Success              bool
	Summary              string
	TotalDurationSeconds float64
	SuccessCount         int
	FailureCount         int
	Errors               []string
	PerSubtask           []SubtaskResult
}

// Summarizer is the narrow LLM surface SUMMARIZE needs.
type Summarizer interface {
	ChatCompletion(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Aggregate merges results under strategy. wallClock is the elapsed time of
// the parallel executor's run; when sequential is true, TotalDurationSeconds
// instead sums each subtask's own duration (SPEC_FULL.md §4.6).
func Aggregate(ctx context.Context, results []SubtaskResult, strategy Strategy, wallClock time.Duration, sequential bool, llm Summarizer) (Result, error) {
	out := Result{Success: true, PerSubtask: results}
	var total float64
	for _, r := range results {
		total += r.DurationSeconds
		if r.Success {
			out.SuccessCount++
		} else {
			out.FailureCount++
			out.Success = false
			if r.Error != "" {
				out.Errors = append(out.Errors, fmt.Sprintf("%s: %s", r.ID, r.Error))
			}
		}
	}
	if sequential {
		out.TotalDurationSeconds = total
	} else {
		out.TotalDurationSeconds = wallClock.Seconds()
	}

	switch strategy {
	case StrategySummarize:
		summary, err := summarize(ctx, results, llm)
		if err != nil {
			return out, err
		}
		out.Summary = summary
	case StrategyMergeJSON:
		merged, err := mergeJSON(results)
		if err != nil {
			return out, err
		}
		out.Summary = merged
	case StrategyList:
		out.Summary = listSummary(results)
	case StrategyConcatenate:
		fallthrough
	default:
		out.Summary = concatenate(results)
	}
	return out, nil
}

func concatenate(results []SubtaskResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Success {
			parts = append(parts, r.Output)
		}
	}
	return strings.Join(parts, "\n---\n")
}

func listSummary(results []SubtaskResult) string {
	items := make([]string, 0, len(results))
	for _, r := range results {
		status := "ok"
		if !r.Success {
			status = "failed: " + r.Error
		}
		items = append(items, fmt.Sprintf("[%s] %s (%s)", r.ID, r.Output, status))
	}
	return strings.Join(items, "\n")
}

func summarize(ctx context.Context, results []SubtaskResult, llm Summarizer) (string, error) {
	if llm == nil {
		return concatenate(results), nil
	}
	var sb strings.Builder
	for _, r := range results {
		fmt.Fprintf(&sb, "Subtask %s: %s\n", r.ID, r.Output)
	}
	reply, err := llm.ChatCompletion(ctx,
		"Summarize the following sub-agent outputs into one concise report.",
		sb.String())
	if err != nil {
		return "", fmt.Errorf("aggregator: summarize call failed: %w", err)
	}
	return reply, nil
}

// mergeJSON deep-merges each successful subtask's Output (parsed as JSON)
// into one object. Scalars are last-writer-wins by subtask order; arrays
// concatenate; nested objects recurse.
func mergeJSON(results []SubtaskResult) (string, error) {
	merged := map[string]any{}
	for _, r := range results {
		if !r.Success || strings.TrimSpace(r.Output) == "" {
			continue
		}
		var piece map[string]any
		if err := json.Unmarshal([]byte(r.Output), &piece); err != nil {
			return "", fmt.Errorf("aggregator: subtask %s output is not a JSON object: %w", r.ID, err)
		}
		merged = mergeMaps(merged, piece)
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return "", fmt.Errorf("aggregator: marshal merged result: %w", err)
	}
	return string(out), nil
}

func mergeMaps(dst, src map[string]any) map[string]any {
	for k, v := range src {
		existing, ok := dst[k]
		if !ok {
			dst[k] = v
			continue
		}
		dst[k] = mergeValues(existing, v)
	}
	return dst
}

func mergeValues(a, b any) any {
	switch bv := b.(type) {
	case map[string]any:
		if av, ok := a.(map[string]any); ok {
			return mergeMaps(av, bv)
		}
		return bv
	case []any:
		if av, ok := a.([]any); ok {
			return append(append([]any{}, av...), bv...)
		}
		return bv
	default:
		return b
	}
}
