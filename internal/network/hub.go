package network

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"SketchBoard/internal/state"
)

// Store persists the shared set. *storage.Store satisfies it.
type Store interface {
	Upsert(ctx context.Context, rec state.Record) error
	Delete(ctx context.Context, id string) error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub owns the authoritative, ordered record set of one board. Every change
// is persisted first, then the full set is sent to every peer and local
// subscriber, the originator included.
//
// Push upserts by ID: a known ID keeps its position and takes the new
// content (last write wins); a new ID goes to the end.
type Hub struct {
	mu      sync.Mutex
	order   []string
	records map[string]state.Record
	store   Store
	peers   map[*peer]bool

	local subscribers
}

// NewHub returns a hub seeded with records in order. store may be nil.
func NewHub(store Store, initial []state.Record) *Hub {
	h := &Hub{
		records: make(map[string]state.Record, len(initial)),
		store:   store,
		peers:   make(map[*peer]bool),
	}
	for _, rec := range initial {
		if err := rec.Validate(); err != nil {
			log.Printf("[HUB] skipping stored record: %v", err)
			continue
		}
		if _, ok := h.records[rec.ID]; !ok {
			h.order = append(h.order, rec.ID)
		}
		h.records[rec.ID] = rec.Clone()
	}
	return h
}

// Push upserts rec into the shared set.
func (h *Hub) Push(rec state.Record) error {
	return h.PushContext(context.Background(), rec)
}

func (h *Hub) PushContext(ctx context.Context, rec state.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.store != nil {
		if err := h.store.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("persist %s: %w", rec.ID, err)
		}
	}
	if _, ok := h.records[rec.ID]; !ok {
		h.order = append(h.order, rec.ID)
	}
	h.records[rec.ID] = rec.Clone()
	h.broadcastLocked()
	return nil
}

// Retract removes the record with the given ID. Unknown IDs are ignored.
func (h *Hub) Retract(id string) error {
	return h.RetractContext(context.Background(), id)
}

func (h *Hub) RetractContext(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.records[id]; !ok {
		return nil
	}
	if h.store != nil {
		if err := h.store.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	delete(h.records, id)
	for i, v := range h.order {
		if v == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.broadcastLocked()
	return nil
}

// Snapshot returns a copy of the shared set in order.
func (h *Hub) Snapshot() []state.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

// Subscribe registers fn for every future snapshot and immediately delivers
// the current one. fn runs on its own goroutine.
func (h *Hub) Subscribe(fn func([]state.Record)) (cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cancel = h.local.add(fn)
	h.local.publish(h.snapshotLocked())
	return cancel
}

// Peers returns the number of connected websocket peers.
func (h *Hub) Peers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Close disconnects every peer and stops local subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.peers {
		h.dropLocked(p)
	}
	h.local.closeAll()
}

// ServeHTTP upgrades the request to a websocket peer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[HUB] upgrade failed: %v", err)
		return
	}
	p := newPeer(conn)

	h.mu.Lock()
	h.peers[p] = true
	p.enqueue(Message{Type: TypeSnapshot, Records: h.snapshotLocked()})
	n := len(h.peers)
	h.mu.Unlock()
	log.Printf("[HUB] peer %s connected, %d total", conn.RemoteAddr(), n)

	go p.writePump()
	go p.readPump(h)
}

func (h *Hub) handle(p *peer, msg Message) {
	var err error
	switch msg.Type {
	case TypePush:
		if msg.Record == nil {
			log.Printf("[HUB] push without record from %s", p.addr)
			return
		}
		err = h.Push(*msg.Record)
	case TypeRetract:
		err = h.Retract(msg.ID)
	default:
		log.Printf("[HUB] unexpected %q from %s", msg.Type, p.addr)
		return
	}
	if err != nil {
		log.Printf("[HUB] %s from %s rejected: %v", msg.Type, p.addr, err)
	}
}

func (h *Hub) unregister(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.peers[p] {
		h.dropLocked(p)
		log.Printf("[HUB] peer %s left, %d total", p.addr, len(h.peers))
	}
}

func (h *Hub) broadcastLocked() {
	snapshot := h.snapshotLocked()
	msg := Message{Type: TypeSnapshot, Records: snapshot}
	for p := range h.peers {
		if !p.enqueue(msg) {
			log.Printf("[HUB] peer %s too slow, dropping it", p.addr)
			h.dropLocked(p)
		}
	}
	h.local.publish(snapshot)
}

func (h *Hub) dropLocked(p *peer) {
	delete(h.peers, p)
	p.close()
}

func (h *Hub) snapshotLocked() []state.Record {
	out := make([]state.Record, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.records[id].Clone())
	}
	return out
}
