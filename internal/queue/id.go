package queue

import (
	"fmt"

	"task-queue-api/internal/arena"
)

// TaskID identifies one claim of a task. A timeout requeue produces a new TaskID for the
// same payload; the old one reports "not found" from then on.
type TaskID arena.ID

// Bytes returns the fixed 16-byte form of the id.
func (id TaskID) Bytes() [16]byte { return arena.ID(id).Bytes() }

// String returns the 32 character hex form used at the HTTP boundary.
func (id TaskID) String() string { return arena.ID(id).String() }

// ParseTaskID decodes the hex form returned by String.
func ParseTaskID(s string) (TaskID, error) {
	id, err := arena.ParseHex(s)
	if err != nil {
		return TaskID{}, fmt.Errorf("parse task id %q: %w", s, err)
	}
	return TaskID(id), nil
}

// MarshalText implements encoding.TextMarshaler so JSON carries the hex form.
func (id TaskID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *TaskID) UnmarshalText(text []byte) error {
	parsed, err := ParseTaskID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// IsZero reports whether id is the zero value, which never names a claim.
func (id TaskID) IsZero() bool { return arena.ID(id).IsZero() }
