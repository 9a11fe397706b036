// Package event defines the domain event contract and the persisted
// envelope shared by all event-sourced aggregates.
//
// An event is an immutable fact appended to exactly one aggregate stream.
// Events are never edited or deleted; corrections are new events.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/beneflow/ledger/id"
)

// Event is a domain fact belonging to one aggregate stream.
// Implementations are plain structs with JSON-encodable fields; amounts
// are integer minor currency units, never floating point.
type Event interface {
	// Kind returns the stable wire name of the event, e.g. "credit_added".
	Kind() string
}

// Recorded is the persisted envelope around a domain event. Seq is the
// 1-based position within the stream; replay applies Recorded events in
// ascending Seq order.
type Recorded struct {
	ID         id.EventID `json:"id"`
	StreamID   string     `json:"stream_id"`
	Seq        int64      `json:"seq"`
	Kind       string     `json:"kind"`
	Data       []byte     `json:"data"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// Record wraps a domain event into a Recorded envelope at the given
// stream position.
func Record(streamID string, seq int64, e Event) (Recorded, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Recorded{}, fmt.Errorf("event: encode %s: %w", e.Kind(), err)
	}

	return Recorded{
		ID:         id.NewEventID(),
		StreamID:   streamID,
		Seq:        seq,
		Kind:       e.Kind(),
		Data:       data,
		RecordedAt: time.Now().UTC(),
	}, nil
}

// DecodeFunc turns a stored (kind, payload) pair back into a typed domain
// event. Each aggregate package provides its own decoder covering the
// event kinds it owns.
type DecodeFunc func(kind string, data []byte) (Event, error)

// Decode unmarshals a Recorded envelope using the given decoder.
func (r Recorded) Decode(decode DecodeFunc) (Event, error) {
	e, err := decode(r.Kind, r.Data)
	if err != nil {
		return nil, fmt.Errorf("event: decode %s@%d in %s: %w", r.Kind, r.Seq, r.StreamID, err)
	}
	return e, nil
}

// Unmarshal is a decoder helper: it unmarshals data into the given event
// value and returns it. Intended for use inside DecodeFunc switches; e
// must be a pointer to the concrete event struct.
func Unmarshal(data []byte, e Event) (Event, error) {
	if err := json.Unmarshal(data, e); err != nil {
		return nil, err
	}
	return e, nil
}
