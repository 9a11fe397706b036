// Package mongotrail stores audit events in a MongoDB collection.
//
// It implements audithook.Recorder over an injected *mongo.Collection;
// connection lifecycle stays with the caller.
package mongotrail

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"

	audithook "github.com/beneflow/ledger/audit_hook"
)

var _ audithook.Recorder = (*Recorder)(nil)

// Recorder writes audit events as documents into one collection.
type Recorder struct {
	coll *mongo.Collection
}

// New creates a Recorder writing to coll.
func New(coll *mongo.Collection) *Recorder {
	return &Recorder{coll: coll}
}

// document is the stored shape of an audit event.
type document struct {
	Action     string         `bson:"action"`
	Resource   string         `bson:"resource"`
	Category   string         `bson:"category"`
	ResourceID string         `bson:"resource_id,omitempty"`
	Metadata   map[string]any `bson:"metadata,omitempty"`
	Outcome    string         `bson:"outcome"`
	Severity   string         `bson:"severity"`
	Reason     string         `bson:"reason,omitempty"`
	RecordedAt time.Time      `bson:"recorded_at"`
}

// Record implements audithook.Recorder.
func (r *Recorder) Record(ctx context.Context, event *audithook.AuditEvent) error {
	doc := document{
		Action:     event.Action,
		Resource:   event.Resource,
		Category:   event.Category,
		ResourceID: event.ResourceID,
		Metadata:   event.Metadata,
		Outcome:    event.Outcome,
		Severity:   event.Severity,
		Reason:     event.Reason,
		RecordedAt: time.Now().UTC(),
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongotrail: insert audit event: %w", err)
	}
	return nil
}
