// Package network is the replication layer: a host hub that owns the shared
// record set and fans it out over websockets, and the participant client
// that talks to it.
package network

import (
	"errors"
	"slices"
	"sync"

	"SketchBoard/internal/state"
)

// Message types on the wire.
const (
	TypePush     = "push"
	TypeRetract  = "retract"
	TypeSnapshot = "snapshot"
)

// Message is one JSON frame between a participant and the host.
type Message struct {
	Type    string         `json:"type"`
	Record  *state.Record  `json:"record,omitempty"`
	ID      string         `json:"id,omitempty"`
	Records []state.Record `json:"records,omitempty"`
}

// ErrDisconnected is returned by Push and Retract while no link to the host
// is up.
var ErrDisconnected = errors.New("not connected to host")

// subscriber delivers snapshots to one callback on its own goroutine. Only
// the newest undelivered snapshot is kept, so a slow callback never blocks
// the producer and never sees a stale state after a newer one.
type subscriber struct {
	fn func([]state.Record)

	mu     sync.Mutex
	latest []state.Record
	ready  bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newSubscriber(fn func([]state.Record)) *subscriber {
	s := &subscriber{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscriber) offer(snapshot []state.Record) {
	s.mu.Lock()
	s.latest = snapshot
	s.ready = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		s.mu.Lock()
		snapshot, ready := s.latest, s.ready
		s.latest, s.ready = nil, false
		s.mu.Unlock()
		if ready {
			s.fn(snapshot)
		}
	}
}

// subscribers is a registry of snapshot callbacks.
type subscribers struct {
	mu   sync.Mutex
	next int
	subs map[int]*subscriber
}

func (r *subscribers) add(fn func([]state.Record)) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs == nil {
		r.subs = make(map[int]*subscriber)
	}
	id := r.next
	r.next++
	s := newSubscriber(fn)
	r.subs[id] = s
	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
		s.stop()
	}
}

// publish hands every subscriber its own copy of snapshot.
func (r *subscribers) publish(snapshot []state.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		s.offer(cloneRecords(snapshot))
	}
}

func (r *subscribers) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.subs {
		s.stop()
		delete(r.subs, id)
	}
}

func cloneRecords(records []state.Record) []state.Record {
	out := slices.Clone(records)
	for i := range out {
		out[i] = out[i].Clone()
	}
	return out
}
