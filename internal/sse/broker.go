// Package sse streams snapshot changes and mutation failures to browsers
// over Server-Sent Events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/starford/daymark/internal/stream"
)

// Event types sent to clients.
const (
	TypeEventsSnapshot = "events.snapshot"
	TypeMarksSnapshot  = "marks.snapshot"
	TypeMutationFailed = "mutation.failed"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Feed produces snapshot events while at least one client is connected.
// It must return once ctx is cancelled.
type Feed func(ctx context.Context, emit func(Event))

// SharedFeed emits every value of s as an event of type typ.
func SharedFeed[T any](typ string, s *stream.Shared[T]) Feed {
	return func(ctx context.Context, emit func(Event)) {
		ch := s.Subscribe()
		defer s.Unsubscribe(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-ch:
				if !ok {
					return
				}
				emit(Event{Type: typ, Data: v})
			}
		}
	}
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients, running feeds, last snapshot per type). Public methods communicate
// with this loop through channels, so no mutexes are required.
//
// Feeds run only while clients are connected. The last snapshot of each type
// is replayed to clients that join while feeds are running.
type Broker struct {
	feeds []Feed

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	snapshotCh    chan snapshot
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker fed by feeds.
func NewBroker(feeds ...Feed) *Broker {
	b := &Broker{
		feeds:         feeds,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		snapshotCh:    make(chan snapshot),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

// snapshot is a feed emission tagged with the feed generation that sent it.
type snapshot struct {
	gen   uint64
	event Event
}

func encode(event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", event.Type, payload), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	last := make(map[string][]byte)
	var (
		stopFeeds context.CancelFunc
		gen       uint64
	)

	broadcast := func(raw []byte) {
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	startFeeds := func() {
		ctx, cancel := context.WithCancel(context.Background())
		stopFeeds = cancel
		gen++
		g := gen
		emit := func(e Event) {
			select {
			case b.snapshotCh <- snapshot{gen: g, event: e}:
			case <-ctx.Done():
			}
		}
		for _, f := range b.feeds {
			go f(ctx, emit)
		}
	}

	for {
		select {
		case <-b.stopCh:
			if stopFeeds != nil {
				stopFeeds()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}
			if stopFeeds == nil {
				startFeeds()
			}
			for _, raw := range last {
				ch <- raw
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}
			if len(clients) == 0 && stopFeeds != nil {
				stopFeeds()
				stopFeeds = nil
				clear(last)
			}

		case event := <-b.publishCh:
			raw, err := encode(event)
			if err != nil {
				continue
			}
			broadcast(raw)

		case snap := <-b.snapshotCh:
			if stopFeeds == nil || snap.gen != gen {
				// Emitted by a feed that has since been stopped.
				continue
			}
			raw, err := encode(snap.event)
			if err != nil {
				continue
			}
			last[snap.event.Type] = raw
			broadcast(raw)

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
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

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishFailure reports a mutation that could not be applied.
func (b *Broker) PublishFailure(id, op string, err error) {
	b.Publish(Event{Type: TypeMutationFailed, Data: map[string]string{
		"id":    id,
		"op":    op,
		"error": err.Error(),
	}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/stream).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
