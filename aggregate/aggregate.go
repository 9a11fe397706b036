// Package aggregate provides the event-sourced aggregate root base:
// record → apply → persist → replay.
//
// An aggregate is a consistency boundary whose state is derived solely
// from its own ordered event stream. Commands validate preconditions
// against replayed state, then Record one or more events; Save appends
// all staged events in one atomic operation.
package aggregate

import (
	"context"
	"fmt"

	"github.com/beneflow/ledger/event"
)

// Applier applies a single domain event to in-memory aggregate state.
// Application must be deterministic: replaying the same ordered event
// list always yields identical state.
type Applier interface {
	ApplyEvent(e event.Event) error
}

// Streams is the slice of the store an aggregate needs: ordered append
// and replay of one stream. Implemented by store.Store and store.Tx.
type Streams interface {
	// AppendEvents appends recs after position expectedVersion. The append
	// is all-or-nothing; a concurrent writer on the same stream surfaces
	// as a concurrency conflict for the caller to retry.
	AppendEvents(ctx context.Context, streamID string, expectedVersion int64, recs []event.Recorded) error
	// ReadStream returns every recorded event for streamID in commit order.
	ReadStream(ctx context.Context, streamID string) ([]event.Recorded, error)
}

// Root is the embeddable aggregate base. It tracks the stream identity,
// the replayed version and the staged (not yet persisted) events.
type Root struct {
	streamID string
	version  int64 // persisted position the aggregate was loaded at
	staged   []event.Event
}

// Init sets the stream identity. Identity is immutable once the first
// event is recorded.
func (r *Root) Init(streamID string) {
	r.streamID = streamID
}

// StreamID returns the aggregate's stream identity.
func (r *Root) StreamID() string { return r.streamID }

// Version returns the persisted stream position this aggregate was
// loaded at. Staged events are not counted until saved.
func (r *Root) Version() int64 { return r.version }

// Staged returns the events recorded since load, in order.
func (r *Root) Staged() []event.Event { return r.staged }

// HasStaged reports whether there are events waiting to be persisted.
func (r *Root) HasStaged() bool { return len(r.staged) > 0 }

// Record stages an event and immediately applies it to local state, so
// subsequent commands in the same unit of work see the effect before
// commit.
func (r *Root) Record(a Applier, e event.Event) error {
	if err := a.ApplyEvent(e); err != nil {
		return fmt.Errorf("aggregate: apply %s on %s: %w", e.Kind(), r.streamID, err)
	}
	r.staged = append(r.staged, e)
	return nil
}

// Load replays every persisted event for the root's stream into the
// applier, in commit order. Returns the number of events replayed.
func Load(ctx context.Context, s Streams, r *Root, a Applier, decode event.DecodeFunc) (int64, error) {
	recs, err := s.ReadStream(ctx, r.streamID)
	if err != nil {
		return 0, err
	}

	for _, rec := range recs {
		e, err := rec.Decode(decode)
		if err != nil {
			return 0, err
		}
		if err := a.ApplyEvent(e); err != nil {
			return 0, fmt.Errorf("aggregate: replay %s@%d on %s: %w", rec.Kind, rec.Seq, r.streamID, err)
		}
	}

	r.version = int64(len(recs))
	return r.version, nil
}

// Save durably appends all staged events in one atomic operation and
// clears the staging buffer. It returns the recorded envelopes so the
// caller can project them inside the same transaction. Saving with no
// staged events is a no-op.
func Save(ctx context.Context, s Streams, r *Root) ([]event.Recorded, error) {
	if len(r.staged) == 0 {
		return nil, nil
	}

	recs := make([]event.Recorded, 0, len(r.staged))
	for i, e := range r.staged {
		rec, err := event.Record(r.streamID, r.version+int64(i)+1, e)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	if err := s.AppendEvents(ctx, r.streamID, r.version, recs); err != nil {
		return nil, err
	}

	r.version += int64(len(recs))
	r.staged = nil
	return recs, nil
}
