package sse

import (
	"strings"
	"testing"
	"time"

	"github.com/specbook-dev/specbook/internal/models"
	"github.com/specbook-dev/specbook/internal/store"
)

func recv(t *testing.T, s *Session) string {
	t.Helper()
	select {
	case msg, ok := <-s.ch:
		if !ok {
			t.Fatal("session channel closed")
		}
		return string(msg)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return ""
	}
}

func TestPublishCreated(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	s := b.Subscribe(nil)
	if s.ID() == "" {
		t.Error("session ID missing")
	}

	b.Publish(store.Event{
		Kind:    store.EventCreated,
		Path:    "specs/001-a/spec.md",
		Version: 1,
		Status:  models.StatusDraft,
		Content: "# A",
		Origin:  models.OriginScan,
	})

	msg := recv(t, s)
	if !strings.HasPrefix(msg, "event: document.created\n") {
		t.Errorf("msg = %q", msg)
	}
	if !strings.Contains(msg, `"path":"specs/001-a/spec.md"`) {
		t.Errorf("payload missing path: %q", msg)
	}
	if !strings.Contains(msg, `"content":"# A"`) {
		t.Errorf("payload missing content: %q", msg)
	}
}

func TestSequentialUpdatesAreIncremental(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	s := b.Subscribe(nil)
	b.Publish(store.Event{Kind: store.EventCreated, Path: "a.md", Version: 1, Content: "v1"})
	recv(t, s)

	b.Publish(store.Event{Kind: store.EventUpdated, Path: "a.md", Version: 2, Content: "v2"})
	msg := recv(t, s)
	if !strings.HasPrefix(msg, "event: document.updated\n") {
		t.Errorf("consecutive version should be an update, got %q", msg)
	}
}

func TestMissedVersionForcesSnapshot(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	s := b.Subscribe(nil)
	b.Publish(store.Event{Kind: store.EventCreated, Path: "a.md", Version: 1, Content: "v1"})
	recv(t, s)

	// Version 2 never reaches this session (e.g. it was dropped before
	// the session subscribed); version 3 must arrive as a full snapshot.
	b.Publish(store.Event{Kind: store.EventUpdated, Path: "a.md", Version: 3, Content: "v3"})
	msg := recv(t, s)
	if !strings.HasPrefix(msg, "event: document.snapshot\n") {
		t.Errorf("gapped version should be a snapshot, got %q", msg)
	}
}

func TestDeleteEvent(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	s := b.Subscribe(nil)
	b.Publish(store.Event{Kind: store.EventDeleted, Path: "a.md", Version: 2})
	msg := recv(t, s)
	if !strings.HasPrefix(msg, "event: document.deleted\n") {
		t.Errorf("msg = %q", msg)
	}
	if strings.Contains(msg, `"content"`) {
		t.Errorf("delete events carry no content: %q", msg)
	}
}

func TestPathFilter(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	s := b.Subscribe([]string{"specs/001-a/spec.md"})
	b.Publish(store.Event{Kind: store.EventCreated, Path: "specs/002-b/spec.md", Version: 1})
	b.Publish(store.Event{Kind: store.EventCreated, Path: "specs/001-a/spec.md", Version: 1})

	msg := recv(t, s)
	if !strings.Contains(msg, "specs/001-a/spec.md") {
		t.Errorf("filtered session got wrong event: %q", msg)
	}
	select {
	case extra := <-s.ch:
		t.Errorf("unexpected extra event: %q", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowSessionDropsThenSnapshots(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	s := b.Subscribe(nil)

	// Overflow the session buffer without reading.
	for i := 1; i <= 70; i++ {
		b.Publish(store.Event{Kind: store.EventUpdated, Path: "a.md", Version: int64(i), Content: "x"})
	}
	// Wait for the loop to drain its event buffer.
	deadline := time.Now().Add(2 * time.Second)
	for len(s.ch) < 64 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// Drain everything buffered.
	for len(s.ch) > 0 {
		<-s.ch
	}

	// The next event lands on a stale path and must be a snapshot.
	b.Publish(store.Event{Kind: store.EventUpdated, Path: "a.md", Version: 71, Content: "x"})
	msg := recv(t, s)
	if !strings.HasPrefix(msg, "event: document.snapshot\n") {
		t.Errorf("post-drop event should be a snapshot, got %q", msg)
	}
}

func TestSessionCountAndUnsubscribe(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	s1 := b.Subscribe(nil)
	s2 := b.Subscribe(nil)
	if n := b.SessionCount(); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	b.Unsubscribe(s1)
	if n := b.SessionCount(); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
	b.Unsubscribe(s2)
}

func TestCloseIdempotent(t *testing.T) {
	b := NewBroker()
	s := b.Subscribe(nil)

	b.Close()
	b.Close()

	if _, ok := <-s.ch; ok {
		t.Error("session channel should be closed")
	}
	// Publishing after close must not panic or block.
	b.Publish(store.Event{Kind: store.EventCreated, Path: "a.md", Version: 1})
	if n := b.SessionCount(); n != 0 {
		t.Errorf("count after close = %d, want 0", n)
	}
}
