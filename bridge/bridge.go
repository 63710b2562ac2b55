// Package bridge implements the Backend Bridge (SPEC_FULL.md §4.8): a
// hooks.Subscriber that translates internal engine events into UI-facing
// ProgressUpdate records. Grounded on the teacher's stream.go
// stream-vs-hooks distinction: the hook bus is the engine's internal,
// unbounded fan-out; this bridge is the one subscriber responsible for
// shaping that fan-out into the narrower contract a UI actually renders.
package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentrt/runtime/hooks"
	"github.com/agentrt/runtime/workflow"
)

// UpdateType names one of the five ProgressUpdate kinds.
type UpdateType string

const (
	UpdateStatus       UpdateType = "status"
	UpdateLog          UpdateType = "log"
	UpdateToolExecuted UpdateType = "tool_executed"
	UpdateResult       UpdateType = "result"
	UpdateCoT          UpdateType = "cot"
)

// ProgressUpdate is the UI-facing record produced from engine events.
type ProgressUpdate struct {
	Type    UpdateType
	Message string
	Data    map[string]any
}

// Sink receives ProgressUpdates as they are produced. Implementations are
// typically a websocket writer or an SSE encoder; this package only shapes
// the data, it never owns the transport.
type Sink interface {
	Send(ctx context.Context, update ProgressUpdate) error
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(ctx context.Context, update ProgressUpdate) error

func (f SinkFunc) Send(ctx context.Context, update ProgressUpdate) error { return f(ctx, update) }

// Bridge is a hooks.Subscriber that counts the tool_executed events it
// receives (one running counter, not reset per task) and forwards shaped
// updates to a Sink.
type Bridge struct {
	mu        sync.Mutex
	sink      Sink
	toolCount int
}

// New constructs a Bridge writing to sink.
func New(sink Sink) *Bridge { return &Bridge{sink: sink} }

// HandleEvent implements hooks.Subscriber.
func (b *Bridge) HandleEvent(ctx context.Context, event hooks.Event) error {
	switch ev := event.(type) {
	case workflow.NodeExecuted:
		return b.sink.Send(ctx, b.fromNodeExecuted(ev))
	case workflow.ToolExecuted:
		b.mu.Lock()
		b.toolCount++
		b.mu.Unlock()
		if err := b.sink.Send(ctx, fromToolExecutedTool(ev)); err != nil {
			return err
		}
		return b.sink.Send(ctx, fromToolExecutedLog(ev))
	case workflow.WorkflowCompleted:
		return b.sink.Send(ctx, b.fromWorkflowCompleted(ev))
	case workflow.ErrorEvent:
		return b.sink.Send(ctx, ProgressUpdate{
			Type:    UpdateLog,
			Message: fmt.Sprintf("error at iteration %d: %s", ev.Iteration, ev.Message),
			Data:    map[string]any{"iteration": ev.Iteration},
		})
	default:
		if ct, ok := rawCoT(event); ok {
			return b.sink.Send(ctx, ProgressUpdate{Type: UpdateCoT, Message: ct, Data: map[string]any{}})
		}
	}
	return nil
}

// cotCarrier is satisfied by workflow's unexported cotEvent type through its
// exported CoTText method; rawCoT checks EventType()=="cot" and then
// type-asserts the event to this interface.
type cotCarrier interface {
	CoTText() string
}

func rawCoT(event hooks.Event) (string, bool) {
	if event.EventType() != "cot" {
		return "", false
	}
	if c, ok := event.(cotCarrier); ok {
		return c.CoTText(), true
	}
	return "", false
}

func (b *Bridge) fromNodeExecuted(ev workflow.NodeExecuted) ProgressUpdate {
	message := nodeMessage(ev)
	return ProgressUpdate{
		Type:    UpdateStatus,
		Message: message,
		Data: map[string]any{
			"node":           ev.Node,
			"iteration":      ev.Iteration,
			"max_iterations": ev.MaxIterations,
			"status":         string(ev.Status),
		},
	}
}

func nodeMessage(ev workflow.NodeExecuted) string {
	base := humanNodeName(ev.Node, ev.Iteration, ev.MaxIterations)
	if ev.Node == "reflect" {
		if ev.ShouldContinue {
			base += " → will continue"
		} else {
			base += " → will complete"
		}
	}
	return base
}

func humanNodeName(node string, iteration, maxIterations int) string {
	switch node {
	case "plan":
		return "Planning task execution strategy"
	case "check_complexity":
		return "Assessing task complexity"
	case "spawn_sub_agents":
		return "Delegating to sub-agents"
	case "execute":
		return fmt.Sprintf("Executing step [Iteration %d/%d]", iteration, maxIterations)
	case "reflect":
		return fmt.Sprintf("Reflecting on progress [Iteration %d/%d]", iteration, maxIterations)
	default:
		return node
	}
}

func fromToolExecutedTool(ev workflow.ToolExecuted) ProgressUpdate {
	return ProgressUpdate{
		Type:    UpdateToolExecuted,
		Message: fmt.Sprintf("ran %s", ev.Tool),
		Data: map[string]any{
			"tool":    ev.Tool,
			"success": ev.Success,
			"params":  ev.Params,
		},
	}
}

func fromToolExecutedLog(ev workflow.ToolExecuted) ProgressUpdate {
	data := map[string]any{"tool": ev.Tool}
	if path, ok := ev.Result.Metadata["path"]; ok {
		data["path"] = path
	}
	if bytes, ok := ev.Result.Metadata["bytes"]; ok {
		data["bytes"] = bytes
	}
	msg := fmt.Sprintf("%s completed", ev.Tool)
	if !ev.Success {
		msg = fmt.Sprintf("%s failed: %s", ev.Tool, ev.Result.Error)
	}
	return ProgressUpdate{Type: UpdateLog, Message: msg, Data: data}
}

func (b *Bridge) fromWorkflowCompleted(ev workflow.WorkflowCompleted) ProgressUpdate {
	b.mu.Lock()
	toolCount := b.toolCount
	b.mu.Unlock()
	return ProgressUpdate{
		Type: UpdateResult,
		Message: fmt.Sprintf("completed after %d iteration(s) and %d tool call(s) in %.2fs",
			ev.Iterations, ev.ToolCallCount, ev.DurationSeconds),
		Data: map[string]any{
			"status":           string(ev.Status),
			"iterations":       ev.Iterations,
			"tool_call_count":  ev.ToolCallCount,
			"duration_seconds": ev.DurationSeconds,
			"bridge_tool_count": toolCount,
		},
	}
}
