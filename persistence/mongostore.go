package persistence

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore is the optional durable Store backend for operators who want
// checkpoint/session durability across process restarts (SPEC_FULL.md §6).
// The core never imports this type directly; callers wire it in behind the
// Store interface.
type MongoStore struct {
	checkpoints *mongo.Collection
	sessions    *mongo.Collection
}

// NewMongoStore wraps two collections in db: "checkpoints" and "sessions".
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		checkpoints: db.Collection("checkpoints"),
		sessions:    db.Collection("sessions"),
	}
}

type checkpointDoc struct {
	TaskID    string    `bson:"task_id"`
	Iteration int       `bson:"iteration"`
	NodeName  string    `bson:"node_name"`
	SavedAt   time.Time `bson:"saved_at"`
	State     bson.Raw  `bson:"state"`
}

func (m *MongoStore) SaveCheckpoint(ctx context.Context, frame CheckpointFrame) error {
	stateBytes, err := bson.Marshal(frame.State)
	if err != nil {
		return fmt.Errorf("persistence: marshal checkpoint state: %w", err)
	}
	doc := checkpointDoc{
		TaskID: frame.TaskID, Iteration: frame.Iteration, NodeName: frame.NodeName,
		SavedAt: time.Now(), State: stateBytes,
	}
	filter := bson.M{"task_id": frame.TaskID, "iteration": frame.Iteration, "node_name": frame.NodeName}
	_, err = m.checkpoints.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("persistence: save checkpoint: %w", err)
	}
	return nil
}

func (m *MongoStore) LoadCheckpoint(ctx context.Context, key CheckpointKey) (CheckpointFrame, error) {
	filter := bson.M{"task_id": key.TaskID, "iteration": key.Iteration, "node_name": key.NodeName}
	var doc checkpointDoc
	if err := m.checkpoints.FindOne(ctx, filter).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return CheckpointFrame{}, &ErrNotFound{Kind: "checkpoint", ID: fmt.Sprintf("%s/%d/%s", key.TaskID, key.Iteration, key.NodeName)}
		}
		return CheckpointFrame{}, fmt.Errorf("persistence: load checkpoint: %w", err)
	}
	frame := CheckpointFrame{TaskID: doc.TaskID, Iteration: doc.Iteration, NodeName: doc.NodeName, SavedAt: doc.SavedAt}
	if err := bson.Unmarshal(doc.State, &frame.State); err != nil {
		return CheckpointFrame{}, fmt.Errorf("persistence: unmarshal checkpoint state: %w", err)
	}
	return frame, nil
}

type sessionDoc struct {
	SessionID string         `bson:"session_id"`
	TaskID    string         `bson:"task_id"`
	CreatedAt time.Time      `bson:"created_at"`
	UpdatedAt time.Time      `bson:"updated_at"`
	Data      map[string]any `bson:"data"`
}

func (m *MongoStore) SaveSession(ctx context.Context, record SessionRecord) error {
	now := time.Now()
	filter := bson.M{"session_id": record.SessionID}

	var existing sessionDoc
	createdAt := now
	if err := m.sessions.FindOne(ctx, filter).Decode(&existing); err == nil {
		createdAt = existing.CreatedAt
	}

	doc := sessionDoc{
		SessionID: record.SessionID, TaskID: record.TaskID,
		CreatedAt: createdAt, UpdatedAt: now, Data: record.Data,
	}
	_, err := m.sessions.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("persistence: save session: %w", err)
	}
	return nil
}

func (m *MongoStore) LoadSession(ctx context.Context, sessionID string) (SessionRecord, error) {
	var doc sessionDoc
	if err := m.sessions.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return SessionRecord{}, &ErrNotFound{Kind: "session", ID: sessionID}
		}
		return SessionRecord{}, fmt.Errorf("persistence: load session: %w", err)
	}
	return SessionRecord{
		SessionID: doc.SessionID, TaskID: doc.TaskID,
		CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt, Data: doc.Data,
	}, nil
}
