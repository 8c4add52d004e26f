package types

import "time"

// Entity carries the bookkeeping timestamps of a stored record. Times are
// UTC with microsecond precision, the finest the SQL stores keep.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity stamps a record created now.
func NewEntity() Entity {
	return EntityAt(time.Now())
}

// EntityAt stamps a record created at t.
func EntityAt(t time.Time) Entity {
	t = stamp(t)
	return Entity{CreatedAt: t, UpdatedAt: t}
}

// Touch records a change at t. UpdatedAt never moves before CreatedAt.
func (e *Entity) Touch(t time.Time) {
	t = stamp(t)
	if t.Before(e.CreatedAt) {
		t = e.CreatedAt
	}
	e.UpdatedAt = t
}

func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
