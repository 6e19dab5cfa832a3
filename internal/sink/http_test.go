package sink

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/go-scope-hub/internal/event"
)

func testHTTPConfig(url string) HTTPConfig {
	return HTTPConfig{
		URL:             url,
		Token:           "secret-token",
		Timeout:         time.Second,
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
		Breaker:         BreakerConfig{MaxFailures: 2, Cooldown: time.Minute, HalfOpenLimit: 1},
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func newTestHTTP(t *testing.T, url string) *HTTP {
	t.Helper()

	h, err := NewHTTP(testHTTPConfig(url))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	return h
}

func testEvent() *event.Event {
	ev := event.NewMessage(event.LevelError, "boom")
	ev.ID = "0123456789abcdef0123456789abcdef"
	ev.Tags = map[string]string{"request_id": "req-1", "correlation_id": "corr-1"}

	return ev
}

func TestNewHTTP(t *testing.T) {
	_, err := NewHTTP(HTTPConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url is required")

	h, err := NewHTTP(HTTPConfig{URL: "http://ingest.example.com/events"})
	require.NoError(t, err)

	assert.Equal(t, "http", h.Name())
	assert.Equal(t, DefaultHTTPMaxAttempts, h.cfg.MaxAttempts)
	assert.Equal(t, DefaultHTTPTimeout, h.cfg.Timeout)
	assert.InDelta(t, DefaultHTTPMultiplier, h.cfg.Multiplier, 0)
	assert.Equal(t, BreakerClosed, h.BreakerState())
}

func TestHTTP_Delivers(t *testing.T) {
	var (
		header http.Header
		body   event.Event
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	h := newTestHTTP(t, server.URL)

	require.NoError(t, h.Capture(context.Background(), testEvent()))

	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, "Bearer secret-token", header.Get("Authorization"))
	assert.Equal(t, "0123456789abcdef0123456789abcdef", header.Get(HeaderEventID))
	assert.Equal(t, "req-1", header.Get(HeaderRequestID))
	assert.Equal(t, "corr-1", header.Get(HeaderCorrelationID))
	assert.Equal(t, "boom", body.Message)
	assert.Equal(t, event.LevelError, body.Level)
}

func TestHTTP_Responses(t *testing.T) {
	tests := []struct {
		name         string
		statuses     []int
		wantAttempts int32
		wantErr      func(t *testing.T, err error)
	}{
		{
			name:         "retries server errors",
			statuses:     []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusOK},
			wantAttempts: 3,
		},
		{
			name:         "client errors are rejected without retry",
			statuses:     []int{http.StatusBadRequest},
			wantAttempts: 1,
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrRejected)
				assert.True(t, event.IsDropped(err))
			},
		},
		{
			name:         "exhausted retries are unavailable",
			statuses:     []int{http.StatusServiceUnavailable},
			wantAttempts: 3,
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
				assert.True(t, event.IsUnavailable(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				n := int(attempts.Add(1)) - 1
				if n >= len(tt.statuses) {
					n = len(tt.statuses) - 1
				}
				w.WriteHeader(tt.statuses[n])
			}))
			defer server.Close()

			h := newTestHTTP(t, server.URL)

			err := h.Capture(context.Background(), testEvent())

			assert.Equal(t, tt.wantAttempts, attempts.Load())

			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			tt.wantErr(t, err)
		})
	}
}

func TestHTTP_BreakerOpensAfterFailures(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	h := newTestHTTP(t, server.URL)
	ctx := context.Background()

	// Breaker opens after two exhausted deliveries.
	require.Error(t, h.Capture(ctx, testEvent()))
	require.Error(t, h.Capture(ctx, testEvent()))
	require.Equal(t, BreakerOpen, h.BreakerState())
	require.Equal(t, int32(6), attempts.Load())

	err := h.Capture(ctx, testEvent())

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, event.IsUnavailable(err))
	assert.Equal(t, int32(6), attempts.Load(), "open breaker must not reach the endpoint")
	assert.ErrorIs(t, h.Check(ctx), ErrCircuitOpen)
}

func TestHTTP_ClientErrorsKeepBreakerClosed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	h := newTestHTTP(t, server.URL)

	for range 5 {
		require.ErrorIs(t, h.Capture(context.Background(), testEvent()), ErrRejected)
	}

	assert.Equal(t, BreakerClosed, h.BreakerState())
	assert.NoError(t, h.Check(context.Background()))
}

func TestHTTP_UnreachableEndpoint(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	h := newTestHTTP(t, url)

	err := h.Capture(context.Background(), testEvent())

	require.Error(t, err)
	assert.True(t, event.IsUnavailable(err))
}

func TestHTTP_ContextCanceledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testHTTPConfig(server.URL)
	cfg.InitialInterval = time.Second
	cfg.MaxInterval = time.Second

	h, err := NewHTTP(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = h.Capture(ctx, testEvent())

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestHTTP_CanceledCallersKeepBreakerClosed(t *testing.T) {
	var slow atomic.Bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if slow.Load() {
			<-r.Context().Done()
			return
		}

		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	h := newTestHTTP(t, server.URL)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	for range 10 {
		err := h.Capture(canceled, testEvent())
		require.ErrorIs(t, err, context.Canceled)
		assert.False(t, event.IsUnavailable(err))
	}

	slow.Store(true)

	for range 3 {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		err := h.Capture(ctx, testEvent())
		cancel()

		require.ErrorIs(t, err, context.DeadlineExceeded)
	}

	slow.Store(false)

	assert.Equal(t, BreakerClosed, h.BreakerState())
	assert.NoError(t, h.Capture(context.Background(), testEvent()))
}

func TestHTTP_CaptureAfterClose(t *testing.T) {
	h := newTestHTTP(t, "http://ingest.example.com/events")
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	err := h.Capture(context.Background(), testEvent())

	assert.True(t, event.IsUnavailable(err))
	assert.NoError(t, h.Flush(context.Background()))
}

func TestHTTP_Backoff(t *testing.T) {
	h := newTestHTTP(t, "http://ingest.example.com/events")
	h.cfg.InitialInterval = 100 * time.Millisecond
	h.cfg.MaxInterval = time.Second
	h.cfg.Multiplier = 2

	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{5, time.Second},
	}

	for _, tt := range tests {
		d := h.backoff(tt.attempt)

		assert.GreaterOrEqual(t, d, time.Duration(float64(tt.base)*(1-backoffJitterFactor)))
		assert.LessOrEqual(t, d, time.Duration(float64(tt.base)*(1+backoffJitterFactor)))
	}
}
