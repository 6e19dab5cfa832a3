package dto

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/go-scope-hub/internal/event"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func bindJSON(t *testing.T, body string, v any) error {
	t.Helper()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	return BindAndValidate(c, v)
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(ErrorCodeValidation, "invalid input").
		WithTraceID("trace-1").
		WithEventID("event-1")

	assert.Equal(t, &ErrorResponse{
		Error: ErrorDetail{
			Code:    ErrorCodeValidation,
			Message: "invalid input",
		},
		TraceID: "trace-1",
		EventID: "event-1",
	}, resp)
}

func TestNewErrorResponseWithDetails(t *testing.T) {
	details := map[string]string{"message": "this field is required"}

	resp := NewErrorResponseWithDetails(ErrorCodeValidation, "request validation failed", details)

	assert.Equal(t, ErrorCodeValidation, resp.Error.Code)
	assert.Equal(t, details, resp.Error.Details)
	assert.Empty(t, resp.TraceID)
}

func TestHTTPStatusFromCode(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{ErrorCodeNotFound, http.StatusNotFound},
		{ErrorCodeMethodNotAllowed, http.StatusMethodNotAllowed},
		{ErrorCodeValidation, http.StatusBadRequest},
		{ErrorCodeBadRequest, http.StatusBadRequest},
		{ErrorCodeUnavailable, http.StatusServiceUnavailable},
		{ErrorCodeDropped, http.StatusServiceUnavailable},
		{ErrorCodeTimeout, http.StatusGatewayTimeout},
		{ErrorCodeInternal, http.StatusInternalServerError},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusFromCode(tt.code))
		})
	}
}

func TestValidator(t *testing.T) {
	assert.Same(t, Validator(), Validator())
}

func TestCaptureEventRequestValidation(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantErr   error
		wantField string
		wantMsg   string
	}{
		{
			name: "minimal",
			body: `{"message":"boom"}`,
		},
		{
			name: "full",
			body: `{
				"event_id":"0f8fad5b-d9cb-469f-a165-70867728950e",
				"message":"boom",
				"level":"warning",
				"transaction":"GET /things",
				"fingerprint":["a","b"],
				"tags":{"region":"eu"},
				"extra":{"attempt":2},
				"user":{"id":"42","email":"jane@example.com","ip_address":"10.0.0.1"},
				"breadcrumbs":[{"category":"db","message":"select","level":"debug"}]
			}`,
		},
		{
			name: "compact event id",
			body: `{"event_id":"0f8fad5bd9cb469fa16570867728950e","message":"boom"}`,
		},
		{
			name:    "malformed json",
			body:    `{message}`,
			wantErr: ErrBinding,
		},
		{
			name:      "missing message",
			body:      `{"level":"info"}`,
			wantErr:   ErrValidation,
			wantField: "message",
			wantMsg:   "this field is required",
		},
		{
			name:      "blank message",
			body:      `{"message":"   "}`,
			wantErr:   ErrValidation,
			wantField: "message",
			wantMsg:   "must not be empty",
		},
		{
			name:      "unknown level",
			body:      `{"message":"boom","level":"loud"}`,
			wantErr:   ErrValidation,
			wantField: "level",
			wantMsg:   "must be one of: debug info warning error fatal",
		},
		{
			name:      "bad event id",
			body:      `{"message":"boom","event_id":"not-an-id"}`,
			wantErr:   ErrValidation,
			wantField: "event_id",
			wantMsg:   "must be a valid UUID",
		},
		{
			name:      "bad user email",
			body:      `{"message":"boom","user":{"email":"nope"}}`,
			wantErr:   ErrValidation,
			wantField: "user.email",
			wantMsg:   "must be a valid email address",
		},
		{
			name:      "bad user ip",
			body:      `{"message":"boom","user":{"ip_address":"999.1.1.1"}}`,
			wantErr:   ErrValidation,
			wantField: "user.ip_address",
			wantMsg:   "must be a valid IP address",
		},
		{
			name:      "breadcrumb without message",
			body:      `{"message":"boom","breadcrumbs":[{"category":"db"}]}`,
			wantErr:   ErrValidation,
			wantField: "breadcrumbs[0].message",
			wantMsg:   "this field is required",
		},
		{
			name:      "reserved tag",
			body:      `{"message":"boom","tags":{"http.route":"/x"}}`,
			wantErr:   ErrValidation,
			wantField: "tags",
			wantMsg:   "tag http.route is reserved",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req CaptureEventRequest

			err := bindJSON(t, tt.body, &req)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tt.wantErr)

			if tt.wantField != "" {
				assert.True(t, IsValidationError(err))
				assert.Equal(t, tt.wantMsg, ValidationErrors(err)[tt.wantField])
			}
		})
	}
}

func TestCaptureEventRequestToEvent(t *testing.T) {
	req := CaptureEventRequest{
		EventID:     "0f8fad5b-d9cb-469f-a165-70867728950e",
		Message:     "disk full",
		Level:       "warn",
		Transaction: "job.cleanup",
		Fingerprint: []string{"disk"},
		Tags:        map[string]string{"host": "a1"},
		Extra:       map[string]any{"free": 0},
		User:        &UserRequest{ID: "42", Username: "jane"},
		Breadcrumbs: []BreadcrumbRequest{
			{Category: "fs", Message: "stat", Level: "debug"},
			{Message: "write"},
		},
	}

	ev := req.ToEvent()

	assert.Equal(t, "0f8fad5bd9cb469fa16570867728950e", ev.ID)
	assert.Equal(t, event.LevelWarning, ev.Level)
	assert.Equal(t, "disk full", ev.Message)
	assert.Equal(t, "job.cleanup", ev.Transaction)
	assert.Equal(t, []string{"disk"}, ev.Fingerprint)
	assert.Equal(t, "a1", ev.Tags["host"])
	assert.Equal(t, event.User{ID: "42", Username: "jane"}, ev.User)
	require.Len(t, ev.Breadcrumbs, 2)
	assert.Equal(t, event.LevelDebug, ev.Breadcrumbs[0].Level)
	assert.Empty(t, ev.Breadcrumbs[1].Level)
	require.NoError(t, ev.Validate())
}

func TestCaptureEventRequestToEventDefaults(t *testing.T) {
	ev := (&CaptureEventRequest{Message: "hello"}).ToEvent()

	assert.Empty(t, ev.ID)
	assert.Equal(t, event.LevelInfo, ev.Level)
	assert.True(t, ev.User.IsEmpty())
	assert.Empty(t, ev.Breadcrumbs)
}

func TestNewScopeResponse(t *testing.T) {
	s := event.NewScope(10)
	s.SetTag("region", "eu")
	s.SetExtra("attempt", 2)
	s.SetLevel(event.LevelError)
	s.SetTransaction("GET /things")
	s.SetFingerprint([]string{"{{ default }}"})
	s.SetUser(event.User{ID: "42"})
	s.AddBreadcrumb(event.Breadcrumb{Message: "one"})
	s.AddBreadcrumb(event.Breadcrumb{Message: "two"})

	resp := NewScopeResponse(s, 3, false, "memory")

	assert.Equal(t, 3, resp.Depth)
	assert.False(t, resp.Global)
	assert.False(t, resp.Locked)
	assert.Equal(t, "memory", resp.Sink)
	assert.Equal(t, "error", resp.Level)
	assert.Equal(t, "GET /things", resp.Transaction)
	assert.Equal(t, []string{"{{ default }}"}, resp.Fingerprint)
	assert.Equal(t, map[string]string{"region": "eu"}, resp.Tags)
	assert.Equal(t, 2, resp.Extra["attempt"])
	require.NotNil(t, resp.User)
	assert.Equal(t, "42", resp.User.ID)
	assert.Equal(t, 2, resp.Breadcrumbs)
}

func TestNewScopeResponseEmptyUser(t *testing.T) {
	resp := NewScopeResponse(event.NewScope(0), 1, true, "disabled")

	assert.Nil(t, resp.User)
	assert.True(t, resp.Global)
	assert.Empty(t, resp.Tags)
}

func TestNewBreadcrumbResponses(t *testing.T) {
	crumbs := []event.Breadcrumb{
		{Category: "db", Message: "select", Level: event.LevelDebug},
		{Category: "http", Message: "GET /"},
	}

	got := NewBreadcrumbResponses(crumbs)

	require.Len(t, got, 2)
	assert.Equal(t, "select", got[0].Message)
	assert.Equal(t, "debug", got[0].Level)
	assert.Equal(t, "http", got[1].Category)
	assert.NotNil(t, NewBreadcrumbResponses(nil))
}

func TestGetLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero uses default", 0, DefaultLimit},
		{"negative uses default", -5, DefaultLimit},
		{"within range", 50, 50},
		{"capped at max", 500, MaxLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PaginationRequest{Limit: tt.limit}
			assert.Equal(t, tt.want, p.GetLimit())
		})
	}
}

func TestPaginate(t *testing.T) {
	items := []int{0, 1, 2, 3, 4}

	first, err := Paginate(items, PaginationRequest{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, first.Items)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextCursor)

	second, err := Paginate(items, PaginationRequest{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, second.Items)
	assert.True(t, second.HasMore)

	last, err := Paginate(items, PaginationRequest{Limit: 2, Cursor: second.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, []int{4}, last.Items)
	assert.False(t, last.HasMore)
	assert.Empty(t, last.NextCursor)
}

func TestPaginatePastEnd(t *testing.T) {
	cursor := EncodeCursor(&CursorData{Offset: 10})

	page, err := Paginate([]string{"a"}, PaginationRequest{Cursor: cursor})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)
}

func TestPaginateInvalidCursor(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{"not base64", "%%%"},
		{"not json", "bm90LWpzb24="},
		{"negative offset", EncodeCursor(&CursorData{Offset: -1})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Paginate([]int{1}, PaginationRequest{Cursor: tt.cursor})
			require.ErrorIs(t, err, ErrInvalidCursor)
		})
	}
}

func TestEncodeCursorNil(t *testing.T) {
	assert.Empty(t, EncodeCursor(nil))
}

func TestValidationMessages(t *testing.T) {
	type input struct {
		Name  string `json:"name"  validate:"min=3"`
		Tags  []int  `json:"tags"  validate:"max=1"`
		Count int    `json:"count" validate:"gte=1"`
		Code  string `json:"code"  validate:"alpha"`
	}

	err := Validate(&input{Name: "ab", Tags: []int{1, 2}, Count: 0, Code: "123"})
	require.ErrorIs(t, err, ErrValidation)

	fields := ValidationErrors(err)
	assert.Equal(t, "must be at least 3 characters", fields["name"])
	assert.Equal(t, "must be at most 1", fields["tags"])
	assert.Equal(t, "must be greater than or equal to 1", fields["count"])
	assert.Equal(t, "failed validation: alpha", fields["code"])
}

func TestIsValidationError(t *testing.T) {
	var req CaptureEventRequest

	tagErr := Validate(&req)

	assert.True(t, IsValidationError(tagErr))
	assert.True(t, IsValidationError(event.NewValidationError("tags", "bad")))
	assert.False(t, IsValidationError(errors.New("plain")))
	assert.False(t, IsValidationError(nil))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"binding", fmt.Errorf("%w: eof", ErrBinding), http.StatusBadRequest, ErrorCodeBadRequest},
		{"tag validation", Validate(&CaptureEventRequest{}), http.StatusBadRequest, ErrorCodeValidation},
		{"event validation", event.NewValidationError("message", "is required"), http.StatusBadRequest, ErrorCodeValidation},
		{"cursor", ErrInvalidCursor, http.StatusBadRequest, ErrorCodeBadRequest},
		{"dropped", fmt.Errorf("capturing event x: %w", event.NewDroppedError("sink disabled")), http.StatusServiceUnavailable, ErrorCodeDropped},
		{"unavailable", event.NewUnavailableError("redis", "dial tcp"), http.StatusServiceUnavailable, ErrorCodeUnavailable},
		{"unknown", errors.New("kaboom"), http.StatusInternalServerError, ErrorCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := MapError(tt.err)

			assert.Equal(t, tt.wantStatus, status)
			require.NotNil(t, resp)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.NotContains(t, resp.Error.Message, "kaboom")
		})
	}

	status, resp := MapError(nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Nil(t, resp)
}

func TestMapErrorValidationDetails(t *testing.T) {
	_, resp := MapError(event.NewValidationError("message", "is required"))

	assert.Equal(t, map[string]string{"message": "is required"}, resp.Error.Details)
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantGinErrors int
	}{
		{"client error", event.NewValidationError("level", "unknown level"), http.StatusBadRequest, 0},
		{"internal error", errors.New("kaboom"), http.StatusInternalServerError, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			c.Set("trace_id", "trace-123")

			HandleError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Len(t, c.Errors, tt.wantGinErrors)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "trace-123", resp.TraceID)
		})
	}
}

func TestGetTraceID(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	assert.Empty(t, GetTraceID(c))

	c.Set("trace_id", "abc")
	assert.Equal(t, "abc", GetTraceID(c))
}
