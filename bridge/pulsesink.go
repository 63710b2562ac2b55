package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agentrt/runtime/features/stream/pulse/clients/pulse"
)

// PulseSink publishes ProgressUpdate values onto a goa.design/pulse stream,
// one stream per task. Grounded on the teacher's stream/pulse sink.go
// envelope idiom, adapted from its session_id-keyed stream.Event domain to
// this module's task_id-keyed ProgressUpdate.
type PulseSink struct {
	client   pulse.Client
	streamID func(taskID string) string
}

// PulseSinkOption configures a PulseSink.
type PulseSinkOption func(*PulseSink)

// WithStreamID overrides the default "task/<taskID>" stream naming.
func WithStreamID(fn func(taskID string) string) PulseSinkOption {
	return func(s *PulseSink) { s.streamID = fn }
}

// NewPulseSink wraps a Pulse client. client must not be nil.
func NewPulseSink(client pulse.Client, opts ...PulseSinkOption) (*PulseSink, error) {
	if client == nil {
		return nil, errors.New("bridge: pulse client is required")
	}
	sink := &PulseSink{
		client:   client,
		streamID: func(taskID string) string { return fmt.Sprintf("task/%s", taskID) },
	}
	for _, opt := range opts {
		opt(sink)
	}
	return sink, nil
}

// pulseEnvelope is the wire shape written to the Pulse stream.
type pulseEnvelope struct {
	Type      UpdateType     `json:"type"`
	TaskID    string         `json:"task_id"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publish publishes update onto the task's Pulse stream. It does not itself
// satisfy the Sink interface, since it takes a taskID — ToTaskSink binds
// a taskID and returns a Sink closure the Bridge can call.
func (s *PulseSink) Publish(ctx context.Context, taskID string, update ProgressUpdate) error {
	handle, err := s.client.Stream(s.streamID(taskID))
	if err != nil {
		return fmt.Errorf("bridge: open pulse stream: %w", err)
	}
	env := pulseEnvelope{
		Type: update.Type, TaskID: taskID, Message: update.Message,
		Data: update.Data, Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bridge: marshal progress update: %w", err)
	}
	if _, err := handle.Add(ctx, string(update.Type), payload); err != nil {
		return fmt.Errorf("bridge: publish progress update: %w", err)
	}
	return nil
}

// Close releases the underlying Pulse client.
func (s *PulseSink) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// ToTaskSink binds taskID so the result satisfies the Sink interface the
// Bridge forwards updates to.
func (s *PulseSink) ToTaskSink(taskID string) SinkFunc {
	return func(ctx context.Context, update ProgressUpdate) error {
		return s.Publish(ctx, taskID, update)
	}
}
