// Package taskevents decodes task expiry events and turns them into notifications.
package taskevents

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rmacdonaldsmith/tasknotify-go/pkg/subject"
)

// Placeholder is shown when an event carries no usable task name
const Placeholder = "<no name>"

const (
	// BroadcastPattern receives events for every user
	BroadcastPattern = "tasks.ui.>"
	// BroadcastPrefix is the subject prefix of broadcast events
	BroadcastPrefix = "tasks.ui"
	// UserPrefix is the subject prefix of per-user events: task.<userID>.<kind>
	UserPrefix = "task"
)

// Kind is the last subject token of a task event
type Kind string

const (
	// KindExpiring is sent when a task is about to expire
	KindExpiring Kind = "expiring"
	// KindExpired is sent when a task has expired
	KindExpired Kind = "expired"
)

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	return k == KindExpiring || k == KindExpired
}

// Suffix returns the routing suffix of k, for example ".expired"
func (k Kind) Suffix() string {
	return subject.Separator + string(k)
}

// Task is the task carried by an event. Only Name is used for rendering.
type Task struct {
	ID             int        `json:"id"`
	UserID         string     `json:"user_id,omitempty"`
	Name           string     `json:"name,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	ExpiringInfoAt *time.Time `json:"expiring_info_at,omitempty"`
	ExpiredInfoAt  *time.Time `json:"expired_info_at,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Event is the payload of expiring and expired messages
type Event struct {
	Task *Task `json:"task"`
}

// DecodeError reports a payload that is not a task event
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode task event: %s: %v", e.Reason, e.Err)
	}
	return "decode task event: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode parses a task event payload
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, &DecodeError{Reason: "invalid JSON", Err: err}
	}
	if ev.Task == nil {
		return Event{}, &DecodeError{Reason: "missing task"}
	}
	return ev, nil
}

// TaskName extracts the task name from a payload. When the payload is malformed
// or the name is missing it returns Placeholder together with a *DecodeError.
func TaskName(data []byte) (string, error) {
	ev, err := Decode(data)
	if err != nil {
		return Placeholder, err
	}
	if ev.Task.Name == "" {
		return Placeholder, &DecodeError{Reason: "missing task name"}
	}
	return ev.Task.Name, nil
}

// UserPattern returns the subscription pattern for one user: task.<userID>.>
func UserPattern(userID string) (string, error) {
	if err := subject.ValidateToken(userID); err != nil {
		return "", fmt.Errorf("invalid user id: %w", err)
	}
	return subject.ForUser(UserPrefix, userID), nil
}

// SubjectFor returns the publish subject of an event of kind k. An empty userID
// selects the broadcast subject.
func SubjectFor(userID string, k Kind) (string, error) {
	if !k.Valid() {
		return "", fmt.Errorf("unknown event kind %q", k)
	}
	if userID == "" {
		return BroadcastPrefix + k.Suffix(), nil
	}
	if err := subject.ValidateToken(userID); err != nil {
		return "", fmt.Errorf("invalid user id: %w", err)
	}
	return UserPrefix + subject.Separator + userID + k.Suffix(), nil
}
