// Package sse implements the live-sync broadcaster: a Server-Sent Events
// broker that pushes store changes to every connected session.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/specbook-dev/specbook/internal/metrics"
	"github.com/specbook-dev/specbook/internal/models"
	"github.com/specbook-dev/specbook/internal/store"
)

// Session is one connected browser view. It holds only paths into the
// store, never content ownership. Mutable state is owned by the broker
// loop.
type Session struct {
	id string
	ch chan []byte
	// paths is the subscription set; nil means "all".
	paths map[string]struct{}
	// delivered tracks the last version delivered per path, used to
	// decide between incremental updates and full snapshots.
	delivered map[string]int64
	// stale marks paths where a send was dropped; the next event for
	// such a path is a full snapshot.
	stale map[string]struct{}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

func (s *Session) subscribed(path string) bool {
	if s.paths == nil {
		return true
	}
	_, ok := s.paths[path]
	return ok
}

// changePayload is the JSON body of a change notification.
type changePayload struct {
	Path    string        `json:"path"`
	Version int64         `json:"version"`
	Status  models.Status `json:"status,omitempty"`
	Content string        `json:"content,omitempty"`
}

// Broker manages sessions and fans out store events.
//
// Concurrency model: a single internal loop goroutine owns all mutable
// state (the session set and per-session bookkeeping). Public methods
// communicate with the loop through channels, so no mutexes are needed.
// Delivery is best-effort per session: a slow session's buffer fills and
// drops, never blocking the loop or other sessions.
type Broker struct {
	subscribeCh   chan *Session
	unsubscribeCh chan *Session
	eventCh       chan store.Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates and starts a broker.
func NewBroker() *Broker {
	b := &Broker{
		subscribeCh:   make(chan *Session),
		unsubscribeCh: make(chan *Session),
		eventCh:       make(chan store.Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	sessions := make(map[*Session]struct{})

	for {
		select {
		case <-b.stopCh:
			for s := range sessions {
				close(s.ch)
			}
			metrics.SessionsActive.Set(0)
			return

		case s := <-b.subscribeCh:
			sessions[s] = struct{}{}
			metrics.SessionsActive.Set(float64(len(sessions)))

		case s := <-b.unsubscribeCh:
			if _, ok := sessions[s]; ok {
				delete(sessions, s)
				close(s.ch)
			}
			metrics.SessionsActive.Set(float64(len(sessions)))

		case ev := <-b.eventCh:
			for s := range sessions {
				b.deliver(s, ev)
			}

		case resp := <-b.countReqCh:
			resp <- len(sessions)
		}
	}
}

// deliver sends one event to one session. Events for a given path reach
// each session in apply order because the loop is the only sender. A
// session that missed a version (dropped send, or just behind) gets a
// full snapshot instead of an incremental update.
func (b *Broker) deliver(s *Session, ev store.Event) {
	if !s.subscribed(ev.Path) {
		return
	}

	var eventType string
	payload := changePayload{Path: ev.Path, Version: ev.Version, Status: ev.Status}

	switch ev.Kind {
	case store.EventCreated:
		eventType = "document.created"
		payload.Content = ev.Content
	case store.EventDeleted:
		eventType = "document.deleted"
	case store.EventUpdated:
		_, wasStale := s.stale[ev.Path]
		if !wasStale && s.delivered[ev.Path] == ev.Version-1 {
			eventType = "document.updated"
		} else {
			eventType = "document.snapshot"
		}
		payload.Content = ev.Content
	default:
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, data))

	select {
	case s.ch <- msg:
		s.delivered[ev.Path] = ev.Version
		delete(s.stale, ev.Path)
		metrics.Broadcasts.WithLabelValues(eventType).Inc()
	default:
		// Buffer full: drop rather than block the loop. The session
		// catches up via a snapshot on the next event, or via a full
		// GET after reconnect.
		s.stale[ev.Path] = struct{}{}
		metrics.Broadcasts.WithLabelValues("dropped").Inc()
	}
}

// Close stops the loop and closes all session channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Publish feeds a store event into the fan-out loop. Safe to call from
// store listeners; never blocks beyond the event buffer.
func (b *Broker) Publish(ev store.Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.eventCh <- ev:
	case <-b.stopped:
	}
}

// Subscribe registers a session. paths of length zero subscribes to all
// documents.
func (b *Broker) Subscribe(paths []string) *Session {
	s := &Session{
		id:        uuid.NewString(),
		ch:        make(chan []byte, 64),
		delivered: make(map[string]int64),
		stale:     make(map[string]struct{}),
	}
	if len(paths) > 0 {
		s.paths = make(map[string]struct{}, len(paths))
		for _, p := range paths {
			s.paths[p] = struct{}{}
		}
	}

	if b.closed.Load() {
		close(s.ch)
		return s
	}
	select {
	case b.subscribeCh <- s:
	case <-b.stopped:
		close(s.ch)
	}
	return s
}

// Unsubscribe removes a session and closes its channel.
func (b *Broker) Unsubscribe(s *Session) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- s:
	case <-b.stopped:
	}
}

// SessionCount returns the number of connected sessions.
func (b *Broker) SessionCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// ServeHTTP is the SSE endpoint (GET /api/events). An optional "paths"
// query parameter (comma-separated) narrows the subscription.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var paths []string
	if raw := r.URL.Query().Get("paths"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s := b.Subscribe(paths)
	defer b.Unsubscribe(s)

	// Handshake so the client can correlate reconnects.
	_, _ = fmt.Fprintf(w, "event: session\ndata: {\"id\":%q}\n\n", s.id)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
