package types

import (
	"testing"
	"time"
)

func TestNewEntity(t *testing.T) {
	before := time.Now().UTC()
	e := NewEntity()
	after := time.Now().UTC()

	if e.CreatedAt.Before(before) || e.CreatedAt.After(after) {
		t.Errorf("CreatedAt %v outside [%v, %v]", e.CreatedAt, before, after)
	}
	if !e.CreatedAt.Equal(e.UpdatedAt) {
		t.Errorf("CreatedAt %v != UpdatedAt %v", e.CreatedAt, e.UpdatedAt)
	}
}

func TestEntityTouch(t *testing.T) {
	e := Entity{
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	e.Touch()

	if !e.UpdatedAt.After(e.CreatedAt) {
		t.Errorf("Touch did not advance UpdatedAt: %v", e.UpdatedAt)
	}
	if !e.CreatedAt.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Touch changed CreatedAt: %v", e.CreatedAt)
	}
}
