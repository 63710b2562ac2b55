package bridge

import (
	"context"
	"sync"
	"testing"

	"github.com/agentrt/runtime/tools"
	"github.com/agentrt/runtime/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	updates []ProgressUpdate
}

func (r *recordingSink) Send(_ context.Context, update ProgressUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
	return nil
}

func (r *recordingSink) all() []ProgressUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ProgressUpdate{}, r.updates...)
}

func TestHandleEvent_NodeExecutedReflectSuffix(t *testing.T) {
	sink := &recordingSink{}
	b := New(sink)

	err := b.HandleEvent(context.Background(), workflow.NodeExecuted{
		Node: "reflect", Iteration: 2, MaxIterations: 10, ShouldContinue: true,
	})
	require.NoError(t, err)

	updates := sink.all()
	require.Len(t, updates, 1)
	assert.Equal(t, UpdateStatus, updates[0].Type)
	assert.Contains(t, updates[0].Message, "will continue")
}

func TestHandleEvent_ToolExecutedEmitsToolAndLog(t *testing.T) {
	sink := &recordingSink{}
	b := New(sink)

	err := b.HandleEvent(context.Background(), workflow.ToolExecuted{
		Tool:    "READ_FILE",
		Params:  map[string]any{"path": "a.go"},
		Success: true,
		Result:  tools.Result{Success: true, Metadata: map[string]any{"path": "a.go", "bytes": 120}},
	})
	require.NoError(t, err)

	updates := sink.all()
	require.Len(t, updates, 2)
	assert.Equal(t, UpdateToolExecuted, updates[0].Type)
	assert.Equal(t, UpdateLog, updates[1].Type)
	assert.Equal(t, "a.go", updates[1].Data["path"])
	assert.Equal(t, 120, updates[1].Data["bytes"])
}

func TestHandleEvent_ToolExecutedFailureMessage(t *testing.T) {
	sink := &recordingSink{}
	b := New(sink)

	err := b.HandleEvent(context.Background(), workflow.ToolExecuted{
		Tool: "RUN_COMMAND", Success: false,
		Result: tools.Result{Success: false, Error: "exit status 1"},
	})
	require.NoError(t, err)

	updates := sink.all()
	require.Len(t, updates, 2)
	assert.Contains(t, updates[1].Message, "failed: exit status 1")
}

func TestHandleEvent_WorkflowCompletedCountsToolCalls(t *testing.T) {
	sink := &recordingSink{}
	b := New(sink)

	require.NoError(t, b.HandleEvent(context.Background(), workflow.ToolExecuted{Tool: "READ_FILE", Success: true, Result: tools.Result{Success: true}}))
	require.NoError(t, b.HandleEvent(context.Background(), workflow.ToolExecuted{Tool: "WRITE_FILE", Success: true, Result: tools.Result{Success: true}}))
	require.NoError(t, b.HandleEvent(context.Background(), workflow.WorkflowCompleted{
		Status: workflow.StatusCompleted, Iterations: 3, ToolCallCount: 2, DurationSeconds: 1.5,
	}))

	updates := sink.all()
	final := updates[len(updates)-1]
	assert.Equal(t, UpdateResult, final.Type)
	assert.Equal(t, 2, final.Data["bridge_tool_count"])
}

func TestHandleEvent_ErrorEvent(t *testing.T) {
	sink := &recordingSink{}
	b := New(sink)

	require.NoError(t, b.HandleEvent(context.Background(), workflow.ErrorEvent{Message: "boom", Iteration: 4}))

	updates := sink.all()
	require.Len(t, updates, 1)
	assert.Equal(t, UpdateLog, updates[0].Type)
	assert.Contains(t, updates[0].Message, "boom")
}

func TestHandleEvent_UnknownEventIgnored(t *testing.T) {
	sink := &recordingSink{}
	b := New(sink)

	err := b.HandleEvent(context.Background(), unknownEvent{})
	require.NoError(t, err)
	assert.Empty(t, sink.all())
}

type unknownEvent struct{}

func (unknownEvent) EventType() string { return "unknown" }

func TestSinkFunc_AdaptsPlainFunction(t *testing.T) {
	var got ProgressUpdate
	fn := SinkFunc(func(_ context.Context, update ProgressUpdate) error {
		got = update
		return nil
	})
	require.NoError(t, fn.Send(context.Background(), ProgressUpdate{Type: UpdateLog, Message: "hi"}))
	assert.Equal(t, "hi", got.Message)
}
