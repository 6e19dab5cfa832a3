// Package event contains the captured-event model and the scope payload that
// enriches events.
package event

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Level is the severity of an event or breadcrumb.
type Level string

// Severity levels, lowest to highest.
const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

// ParseLevel converts a string to a Level. Unknown values return an error.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return "", NewValidationErrorWithValue("level", "unknown level", s)
	}
}

// User identifies the user affected by an event.
type User struct {
	ID        string `json:"id,omitempty"`
	Email     string `json:"email,omitempty"`
	Username  string `json:"username,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
}

// IsEmpty reports whether no field is set.
func (u User) IsEmpty() bool {
	return u == User{}
}

// Breadcrumb is a trail entry recorded before an event.
type Breadcrumb struct {
	Type      string         `json:"type,omitempty"`
	Category  string         `json:"category,omitempty"`
	Message   string         `json:"message,omitempty"`
	Level     Level          `json:"level,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Exception describes an error attached to an event.
type Exception struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Event is a captured occurrence routed to a sink.
type Event struct {
	ID          string            `json:"event_id"`
	Timestamp   time.Time         `json:"timestamp"`
	Level       Level             `json:"level,omitempty"`
	Message     string            `json:"message,omitempty"`
	Exceptions  []Exception       `json:"exception,omitempty"`
	Transaction string            `json:"transaction,omitempty"`
	Release     string            `json:"release,omitempty"`
	Environment string            `json:"environment,omitempty"`
	Fingerprint []string          `json:"fingerprint,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Extra       map[string]any    `json:"extra,omitempty"`
	Contexts    map[string]any    `json:"contexts,omitempty"`
	User        User              `json:"user,omitempty"`
	Breadcrumbs []Breadcrumb      `json:"breadcrumbs,omitempty"`
}

// NewMessage creates an event carrying msg at level.
func NewMessage(level Level, msg string) *Event {
	return &Event{Level: level, Message: msg}
}

// NewException creates an error-level event describing err and its wrapped
// chain, outermost first.
func NewException(err error) *Event {
	ev := &Event{Level: LevelError, Message: err.Error()}

	for e := err; e != nil; e = errors.Unwrap(e) {
		ev.Exceptions = append(ev.Exceptions, Exception{
			Type:  fmt.Sprintf("%T", e),
			Value: e.Error(),
		})
	}

	return ev
}

// Validate checks that the event can be routed.
func (e *Event) Validate() error {
	if e.Message == "" && len(e.Exceptions) == 0 {
		return NewValidationError("message", "message or exception is required")
	}

	if e.Level != "" {
		if _, err := ParseLevel(string(e.Level)); err != nil {
			return err
		}
	}

	return nil
}
