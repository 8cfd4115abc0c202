package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"plantops-cloud/internal/broadcast"
)

// The logging wrapper must not hide the Flusher of the underlying
// writer, or the event stream endpoint serves nothing.
func TestLoggingMiddlewareKeepsStreamFlushable(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	broker := broadcast.NewSSEBroker(logger)
	handler := loggingMiddleware(broadcast.NewStreamHandler(broker), logger)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/api/v1/stream/device-27", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	served := make(chan struct{})
	go func() {
		handler.ServeHTTP(rec, req)
		close(served)
	}()

	deadline := time.Now().Add(time.Second)
	for {
		if broker.SubscriberCount(broadcast.DeviceScope("device-27")) == 1 {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("stream never subscribed: status=%d body=%q", rec.Code, rec.Body.String())
		}
		time.Sleep(5 * time.Millisecond)
	}

	broker.Publish(broadcast.DeviceScope("device-27"), broadcast.EventStateUpdate, map[string]bool{"status": true})
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-served

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 through middleware, got %d body=%q", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: ready") || !strings.Contains(body, "event: stateUpdate") {
		t.Fatalf("stream body missing events: %q", body)
	}
}

func TestStatusWriterForwardsFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	var w http.ResponseWriter = &statusWriter{ResponseWriter: rec, status: http.StatusOK}
	flusher, ok := w.(http.Flusher)
	if !ok {
		t.Fatal("statusWriter does not expose Flusher")
	}
	flusher.Flush()
	if !rec.Flushed {
		t.Fatal("flush was not forwarded")
	}
}
