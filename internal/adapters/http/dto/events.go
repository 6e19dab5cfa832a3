package dto

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jsamuelsen/go-scope-hub/internal/event"
)

// reservedTagPrefixes are tag namespaces owned by the request scope.
var reservedTagPrefixes = []string{"http.", "request_id", "correlation_id"}

// UserRequest identifies the affected user of a captured event.
type UserRequest struct {
	ID        string `json:"id"         validate:"omitempty,max=128"`
	Email     string `json:"email"      validate:"omitempty,email"`
	Username  string `json:"username"   validate:"omitempty,max=128"`
	IPAddress string `json:"ip_address" validate:"omitempty,ip"`
}

// BreadcrumbRequest is a breadcrumb submitted with an event or on its own.
type BreadcrumbRequest struct {
	Type     string         `json:"type"     validate:"omitempty,max=32"`
	Category string         `json:"category" validate:"omitempty,max=64"`
	Message  string         `json:"message"  validate:"required,notempty,max=1024"`
	Level    string         `json:"level"    validate:"omitempty,level"`
	Data     map[string]any `json:"data"`
}

// ToBreadcrumb converts the request to a breadcrumb.
func (r BreadcrumbRequest) ToBreadcrumb() event.Breadcrumb {
	b := event.Breadcrumb{
		Type:     r.Type,
		Category: r.Category,
		Message:  r.Message,
		Data:     r.Data,
	}

	if lvl, err := event.ParseLevel(r.Level); err == nil {
		b.Level = lvl
	}

	return b
}

// CaptureEventRequest is the body of POST /api/v1/events.
type CaptureEventRequest struct {
	EventID     string              `json:"event_id"    validate:"omitempty,uuid"`
	Message     string              `json:"message"     validate:"required,notempty,max=8192"`
	Level       string              `json:"level"       validate:"omitempty,level"`
	Transaction string              `json:"transaction" validate:"omitempty,max=200"`
	Fingerprint []string            `json:"fingerprint" validate:"omitempty,max=10,dive,notempty"`
	Tags        map[string]string   `json:"tags"        validate:"omitempty,max=50,dive,keys,notempty,max=32,endkeys,max=200"`
	Extra       map[string]any      `json:"extra"       validate:"omitempty,max=50"`
	User        *UserRequest        `json:"user"`
	Breadcrumbs []BreadcrumbRequest `json:"breadcrumbs" validate:"omitempty,max=100,dive"`
}

// Validate rejects tags in namespaces the server sets on the request scope.
func (r *CaptureEventRequest) Validate() error {
	for key := range r.Tags {
		for _, prefix := range reservedTagPrefixes {
			if strings.HasPrefix(key, prefix) {
				return event.NewValidationErrorWithValue("tags", "tag "+key+" is reserved", key)
			}
		}
	}

	return nil
}

// ToEvent converts the request into an event ready for capture.
func (r *CaptureEventRequest) ToEvent() *event.Event {
	level := event.LevelInfo
	if lvl, err := event.ParseLevel(r.Level); err == nil {
		level = lvl
	}

	ev := event.NewMessage(level, r.Message)
	ev.ID = strings.ReplaceAll(r.EventID, "-", "")
	ev.Transaction = r.Transaction
	ev.Fingerprint = r.Fingerprint
	ev.Tags = r.Tags
	ev.Extra = r.Extra

	if r.User != nil {
		ev.User = event.User{
			ID:        r.User.ID,
			Email:     r.User.Email,
			Username:  r.User.Username,
			IPAddress: r.User.IPAddress,
		}
	}

	for _, b := range r.Breadcrumbs {
		ev.Breadcrumbs = append(ev.Breadcrumbs, b.ToBreadcrumb())
	}

	return ev
}

// CaptureEventResponse is returned for an accepted event.
type CaptureEventResponse struct {
	EventID string `json:"event_id"`
}

// BatchCaptureRequest is the body of POST /api/v1/events/batch.
type BatchCaptureRequest struct {
	Events []CaptureEventRequest `json:"events" validate:"required,min=1,max=100,dive"`
}

// Validate applies CaptureEventRequest.Validate to every event.
func (r *BatchCaptureRequest) Validate() error {
	for i := range r.Events {
		err := r.Events[i].Validate()
		if err == nil {
			continue
		}

		var ve *event.ValidationError
		if errors.As(err, &ve) {
			return event.NewValidationErrorWithValue(fmt.Sprintf("events[%d].%s", i, ve.Field), ve.Message, ve.Value)
		}

		return err
	}

	return nil
}

// BatchResult is the outcome of one event in a batch, in request order.
type BatchResult struct {
	EventID string       `json:"event_id,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// BatchCaptureResponse is returned for a batch request.
type BatchCaptureResponse struct {
	Results []BatchResult `json:"results"`
}

// UserResponse is the user set on a scope.
type UserResponse struct {
	ID        string `json:"id,omitempty"`
	Email     string `json:"email,omitempty"`
	Username  string `json:"username,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
}

// BreadcrumbResponse is a breadcrumb of the current scope.
type BreadcrumbResponse struct {
	Type      string         `json:"type,omitempty"`
	Category  string         `json:"category,omitempty"`
	Message   string         `json:"message,omitempty"`
	Level     string         `json:"level,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewBreadcrumbResponses converts breadcrumbs, preserving order.
func NewBreadcrumbResponses(crumbs []event.Breadcrumb) []BreadcrumbResponse {
	out := make([]BreadcrumbResponse, 0, len(crumbs))
	for _, b := range crumbs {
		out = append(out, BreadcrumbResponse{
			Type:      b.Type,
			Category:  b.Category,
			Message:   b.Message,
			Level:     string(b.Level),
			Data:      b.Data,
			Timestamp: b.Timestamp,
		})
	}

	return out
}

// ScopeResponse describes the top scope of the calling flow.
type ScopeResponse struct {
	Depth       int               `json:"depth"`
	Global      bool              `json:"global"`
	Locked      bool              `json:"locked"`
	Sink        string            `json:"sink"`
	Level       string            `json:"level,omitempty"`
	Transaction string            `json:"transaction,omitempty"`
	Fingerprint []string          `json:"fingerprint,omitempty"`
	Tags        map[string]string `json:"tags"`
	Extra       map[string]any    `json:"extra,omitempty"`
	User        *UserResponse     `json:"user,omitempty"`
	Breadcrumbs int               `json:"breadcrumbs"`
}

// NewScopeResponse builds a ScopeResponse from a scope snapshot.
func NewScopeResponse(s *event.Scope, depth int, global bool, sinkName string) ScopeResponse {
	resp := ScopeResponse{
		Depth:       depth,
		Global:      global,
		Locked:      s.Locked(),
		Sink:        sinkName,
		Level:       string(s.Level()),
		Transaction: s.Transaction(),
		Fingerprint: s.Fingerprint(),
		Tags:        s.Tags(),
		Extra:       s.Extra(),
		Breadcrumbs: len(s.Breadcrumbs()),
	}

	if u := s.User(); !u.IsEmpty() {
		resp.User = &UserResponse{
			ID:        u.ID,
			Email:     u.Email,
			Username:  u.Username,
			IPAddress: u.IPAddress,
		}
	}

	return resp
}
