// Package sse implements a Server-Sent Events broker streaming
// ingestion progress to connected clients.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// subscriberBuffer is each client's channel capacity; slow clients drop
// messages rather than stall the loop.
const subscriberBuffer = 64

// brokerState is owned exclusively by the broker goroutine.
type brokerState struct {
	clients   map[chan []byte]struct{}
	lastGraph time.Time
}

func (st *brokerState) broadcast(typ string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", typ, payload))
	for ch := range st.clients {
		select {
		case ch <- raw:
		default:
		}
	}
}

// Broker fans ingestion events out to SSE clients.
//
// Concurrency model: a single goroutine owns all mutable state and
// executes commands sent as closures over a channel, so no mutexes are
// required.
type Broker struct {
	graphMin time.Duration

	cmds   chan func(*brokerState)
	stopCh chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// NewBroker creates a broker whose graph.updated notifications are
// throttled to at most one per graphThrottle.
func NewBroker(graphThrottle time.Duration) *Broker {
	if graphThrottle <= 0 {
		graphThrottle = 2 * time.Second
	}
	b := &Broker{
		graphMin: graphThrottle,
		cmds:     make(chan func(*brokerState), 256),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	st := &brokerState{clients: make(map[chan []byte]struct{})}
	for {
		select {
		case <-b.stopCh:
			for ch := range st.clients {
				close(ch)
			}
			close(b.done)
			return
		case cmd := <-b.cmds:
			cmd(st)
		}
	}
}

// do hands a command to the broker goroutine. It reports false when the
// broker is closed and the command was not run.
func (b *Broker) do(cmd func(*brokerState)) bool {
	if b.closed.Load() {
		return false
	}
	select {
	case b.cmds <- cmd:
		return true
	case <-b.done:
		return false
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.done
}

// Subscribe registers a new client and returns its channel. The channel
// is already closed when the broker is shut down.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	if !b.do(func(st *brokerState) { st.clients[ch] = struct{}{} }) {
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.do(func(st *brokerState) {
		if _, ok := st.clients[ch]; ok {
			delete(st.clients, ch)
			close(ch)
		}
	})
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	resp := make(chan int, 1)
	if !b.do(func(st *brokerState) { resp <- len(st.clients) }) {
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.done:
		return 0
	}
}

// Publish broadcasts one event to all connected clients.
func (b *Broker) Publish(event Event) {
	b.do(func(st *brokerState) { st.broadcast(event.Type, event.Data) })
}

// PublishIngestEvent broadcasts an ingestion lifecycle event plus a
// throttled graph.updated nudge. It matches vault.EventFunc so the hub
// can feed it directly.
func (b *Broker) PublishIngestEvent(vaultID, kind, detail string) {
	b.do(func(st *brokerState) {
		data := map[string]string{"vault": vaultID}
		switch kind {
		case "ingest.started":
			st.broadcast("vault.ingest.started", data)
		case "note.indexed":
			data["slug"] = detail
			st.broadcast("note.indexed", data)
		case "ingest.completed":
			data["summary"] = detail
			st.broadcast("vault.ingest.completed", data)
		}

		// Graph consumers only need a nudge, not one event per note.
		if now := time.Now(); now.Sub(st.lastGraph) >= b.graphMin {
			st.lastGraph = now
			st.broadcast("graph.updated", map[string]string{"vault": vaultID})
		}
	})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	rc := http.NewResponseController(w)
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}
