// Package persistence implements the §6 "Persisted state" contract: session
// records and checkpoint frames (the entire Task State at node boundaries,
// keyed by task_id/iteration/node_name), behind a narrow Store interface the
// core depends on instead of any concrete backend. Grounded on the
// teacher's session.go Session/RunMeta/Store shape.
package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentrt/runtime/workflow"
)

// SessionRecord is an opaque-to-the-core session record: the orchestrator
// and callers attach whatever metadata they need in Data.
type SessionRecord struct {
	SessionID string
	TaskID    string
	CreatedAt time.Time
	UpdatedAt time.Time
	Data      map[string]any
}

// CheckpointFrame is the entire Task State at one node boundary.
type CheckpointFrame struct {
	TaskID    string
	Iteration int
	NodeName  string
	State     workflow.State
	SavedAt   time.Time
}

// CheckpointKey identifies one CheckpointFrame.
type CheckpointKey struct {
	TaskID    string
	Iteration int
	NodeName  string
}

// Store is the core's narrow save/load contract. Implementations need not
// be transactional across the two record kinds.
type Store interface {
	SaveCheckpoint(ctx context.Context, frame CheckpointFrame) error
	LoadCheckpoint(ctx context.Context, key CheckpointKey) (CheckpointFrame, error)
	SaveSession(ctx context.Context, record SessionRecord) error
	LoadSession(ctx context.Context, sessionID string) (SessionRecord, error)
}

// ErrNotFound is returned by Load* methods when no matching record exists.
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e *ErrNotFound) Error() string { return fmt.Sprintf("persistence: %s %q not found", e.Kind, e.ID) }

// MemoryStore is an in-memory Store, suitable for tests and single-process
// deployments without a durability requirement.
type MemoryStore struct {
	mu           sync.RWMutex
	checkpoints  map[CheckpointKey]CheckpointFrame
	sessions     map[string]SessionRecord
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checkpoints: map[CheckpointKey]CheckpointFrame{},
		sessions:    map[string]SessionRecord{},
	}
}

func (s *MemoryStore) SaveCheckpoint(_ context.Context, frame CheckpointFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := CheckpointKey{TaskID: frame.TaskID, Iteration: frame.Iteration, NodeName: frame.NodeName}
	frame.SavedAt = time.Now()
	s.checkpoints[key] = frame
	return nil
}

func (s *MemoryStore) LoadCheckpoint(_ context.Context, key CheckpointKey) (CheckpointFrame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	frame, ok := s.checkpoints[key]
	if !ok {
		return CheckpointFrame{}, &ErrNotFound{Kind: "checkpoint", ID: fmt.Sprintf("%s/%d/%s", key.TaskID, key.Iteration, key.NodeName)}
	}
	return frame, nil
}

func (s *MemoryStore) SaveSession(_ context.Context, record SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.UpdatedAt = time.Now()
	if existing, ok := s.sessions[record.SessionID]; ok {
		record.CreatedAt = existing.CreatedAt
	} else {
		record.CreatedAt = record.UpdatedAt
	}
	s.sessions[record.SessionID] = record
	return nil
}

func (s *MemoryStore) LoadSession(_ context.Context, sessionID string) (SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.sessions[sessionID]
	if !ok {
		return SessionRecord{}, &ErrNotFound{Kind: "session", ID: sessionID}
	}
	return record, nil
}
