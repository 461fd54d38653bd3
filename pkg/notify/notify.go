// Package notify defines the notifications shown to the user and the presenter contract.
package notify

import "fmt"

// Severity classifies a notification
type Severity string

const (
	// SeverityInfo is the default severity
	SeverityInfo Severity = "info"
	// SeverityWarning is used for tasks about to expire
	SeverityWarning Severity = "warning"
	// SeverityError is used for expired tasks and failures
	SeverityError Severity = "error"
)

// Valid reports whether s is one of the known severities
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError:
		return true
	}
	return false
}

// ParseSeverity converts a string into a Severity
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if s == "" {
		return SeverityInfo, nil
	}
	if !sev.Valid() {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// Notification is a user-visible message.
//
// Every field is optional; the zero value means severity info with empty
// title, text and details.
type Notification struct {
	Severity Severity `json:"severity"`
	Title    string   `json:"title"`
	Text     string   `json:"text"`
	Details  string   `json:"details,omitempty"`
}

// WithDefaults returns n with unset fields replaced by their defaults
func (n Notification) WithDefaults() Notification {
	if !n.Severity.Valid() {
		n.Severity = SeverityInfo
	}
	return n
}

// IsEmpty reports whether the notification has neither a title nor a text
func (n Notification) IsEmpty() bool {
	return n.Title == "" && n.Text == ""
}

// HasDetails reports whether a details block should be rendered
func (n Notification) HasDetails() bool {
	return n.Details != ""
}

// Presenter shows notifications. Show is fire-and-forget.
type Presenter interface {
	Show(n Notification)
}

// PresenterFunc adapts a function to the Presenter interface
type PresenterFunc func(n Notification)

// Show calls f(n)
func (f PresenterFunc) Show(n Notification) {
	f(n)
}
