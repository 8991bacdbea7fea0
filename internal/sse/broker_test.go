package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/postdesk/internal/models"
)

func receive(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return ""
	}
}

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestNotify(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Notify("Post published successfully!", models.SeveritySuccess)

	s := receive(t, ch)
	if !strings.HasPrefix(s, "event: notification\n") {
		t.Errorf("missing event type in %q", s)
	}
	if !strings.Contains(s, `"message":"Post published successfully!"`) || !strings.Contains(s, `"severity":"success"`) {
		t.Errorf("missing payload in %q", s)
	}
	if !strings.HasSuffix(s, "\n\n") {
		t.Errorf("event not terminated: %q", s)
	}
}

func TestDraftSaved(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.DraftSaved(time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC))

	s := receive(t, ch)
	if !strings.Contains(s, "event: draft.saved") {
		t.Errorf("missing event type in %q", s)
	}
	if !strings.Contains(s, `"savedAt":"2026-10-19T08:00:00Z"`) {
		t.Errorf("missing savedAt in %q", s)
	}
}

func TestPublishStoreEvent_StatsThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishStoreEvent("updated", models.PostsKey)
	b.PostsChanged()
	b.PublishStoreEvent("updated", models.DraftKey)
	b.PublishStoreEvent("updated", "unrelated")

	time.Sleep(50 * time.Millisecond)
	var posts, stats, drafts int
	for _, s := range drain(ch) {
		switch {
		case strings.Contains(s, "event: posts.updated"):
			posts++
		case strings.Contains(s, "event: stats.updated"):
			stats++
		case strings.Contains(s, "event: draft.updated"):
			drafts++
		default:
			t.Errorf("unexpected event %q", s)
		}
	}

	if posts != 2 {
		t.Errorf("posts events = %d, want 2", posts)
	}
	if stats != 1 {
		t.Errorf("stats events = %d, want 1 (throttled)", stats)
	}
	if drafts != 1 {
		t.Errorf("draft events = %d, want 1", drafts)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Notify("Draft saved successfully!", models.SeveritySuccess)
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q, want text/event-stream", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "event: notification") {
		t.Errorf("handler output missing event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Capacity is 64; the extra events must not block the loop.
	for i := 0; i < 70; i++ {
		b.Notify("x", models.SeverityInfo)
	}
	if b.ClientCount() != 1 {
		t.Fatalf("broker loop stalled")
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Safe no-ops after close.
	b.Notify("late", models.SeverityInfo)
	b.PublishStoreEvent("updated", models.PostsKey)
	b.DraftSaved(time.Now())
}
