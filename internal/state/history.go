package state

import (
	"errors"
	"fmt"
	"log"
	"slices"
)

// Replicator is the write side of the replication layer.
type Replicator interface {
	// Push upserts one record into the shared set. Idempotent by ID.
	Push(rec Record) error
	// Retract removes one record from the shared set.
	Retract(id string) error
}

const (
	opPush    = "push"
	opRetract = "retract"
)

// ReplicationError reports a push or retract that did not reach the shared
// set. It is a warning: local state has already been updated and the
// operation stays queued until Flush succeeds.
type ReplicationError struct {
	Op  string
	ID  string
	Err error
}

func (e *ReplicationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *ReplicationError) Unwrap() error { return e.Err }

var errQueued = errors.New("queued behind earlier unsynced operations")

type pendingOp struct {
	op  string
	rec Record
}

// Controller owns the local view of which records are applied (active) and
// which were undone locally (undone). It is not safe for concurrent use;
// callers serialize every event through one goroutine.
//
// A record is in at most one of active and undone. A new draw, erase or clear
// empties undone.
type Controller struct {
	replica Replicator
	author  string

	active []Record
	undone []Record

	// in-progress gesture, nil when idle
	gesture *Record

	color     string
	thickness float32
	eraser    bool

	pending []pendingOp
}

// NewController returns an idle controller with a black 3px pen. A nil
// replica keeps the board local.
func NewController(replica Replicator, author string) *Controller {
	return &Controller{
		replica:   replica,
		author:    author,
		color:     DefaultColor,
		thickness: 3,
	}
}

func (c *Controller) SetColor(col string)    { c.color = NormalizeColor(col) }
func (c *Controller) Color() string          { return c.color }
func (c *Controller) SetThickness(t float32) { c.thickness = ClampThickness(t) }
func (c *Controller) Thickness() float32     { return c.thickness }
func (c *Controller) SetEraser(on bool)      { c.eraser = on }
func (c *Controller) Eraser() bool           { return c.eraser }
func (c *Controller) Author() string         { return c.author }
func (c *Controller) Accumulating() bool     { return c.gesture != nil }
func (c *Controller) Pending() int           { return len(c.pending) }
func (c *Controller) Active() []Record       { return slices.Clone(c.active) }
func (c *Controller) Undone() []Record       { return slices.Clone(c.undone) }

// Gesture returns a copy of the in-progress record.
func (c *Controller) Gesture() (Record, bool) {
	if c.gesture == nil {
		return Record{}, false
	}
	return c.gesture.Clone(), true
}

// Frame returns what the canvas should show: active records followed by the
// gesture being drawn, if any.
func (c *Controller) Frame() []Record {
	frame := make([]Record, 0, len(c.active)+1)
	frame = append(frame, c.active...)
	if c.gesture != nil {
		frame = append(frame, c.gesture.Clone())
	}
	return frame
}

// BeginGesture opens a gesture with the current tool settings.
func (c *Controller) BeginGesture(p Point) error {
	return c.BeginGestureWith(p, c.eraser, c.color, c.thickness)
}

// BeginGestureWith opens a draw or erase gesture seeded with p. A gesture
// that is still open is finalized first so no input is lost.
func (c *Controller) BeginGestureWith(p Point, eraser bool, col string, thickness float32) error {
	var err error
	if c.gesture != nil {
		log.Printf("[HISTORY] begin while accumulating %s, finalizing it first", c.gesture.ID)
		_, _, err = c.EndGesture()
	}
	g := Record{
		ID:        NewID(),
		Kind:      KindDraw,
		Points:    []Point{p},
		Thickness: ClampThickness(thickness),
		Author:    c.author,
	}
	if eraser {
		g.Kind = KindErase
	} else {
		g.Color = NormalizeColor(col)
	}
	c.gesture = &g
	return err
}

// ExtendGesture appends p to the open gesture. Without one it does nothing.
func (c *Controller) ExtendGesture(p Point) {
	if c.gesture == nil {
		return
	}
	c.gesture.Points = append(c.gesture.Points, p)
}

// EndGesture finalizes the open gesture. A gesture with no points is dropped.
// The committed record is returned with ok set; err is non-nil only when the
// push to the replication layer failed.
func (c *Controller) EndGesture() (rec Record, ok bool, err error) {
	if c.gesture == nil {
		return Record{}, false, nil
	}
	g := *c.gesture
	c.gesture = nil
	if len(g.Points) == 0 {
		return Record{}, false, nil
	}
	c.commit(g)
	return g.Clone(), true, c.push(g)
}

// CancelGesture handles an abandoned gesture exactly like EndGesture.
func (c *Controller) CancelGesture() (Record, bool, error) {
	return c.EndGesture()
}

// ClearAll appends a clear marker. An open gesture is finalized first so it
// is covered by the clear.
func (c *Controller) ClearAll() (Record, error) {
	var errs []error
	if c.gesture != nil {
		if _, _, err := c.EndGesture(); err != nil {
			errs = append(errs, err)
		}
	}
	rec := NewClear()
	rec.Author = c.author
	c.commit(rec)
	if err := c.push(rec); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return rec, errs[len(errs)-1]
	}
	return rec, nil
}

// commit makes rec active and starts a new branch of history.
func (c *Controller) commit(rec Record) {
	c.active = append(c.active, rec)
	c.undone = nil
	log.Printf("[HISTORY] committed %s %s (%d points)", rec.Kind, rec.ID, len(rec.Points))
}

// Undo moves the newest active record onto the undo stack and retracts it
// from the shared set. With nothing active it does nothing.
func (c *Controller) Undo() (rec Record, ok bool, err error) {
	n := len(c.active)
	if n == 0 {
		return Record{}, false, nil
	}
	rec = c.active[n-1]
	c.active = c.active[:n-1]
	c.undone = append(c.undone, rec)
	log.Printf("[HISTORY] undo %s", rec.ID)
	return rec.Clone(), true, c.retract(rec)
}

// Redo re-applies the most recently undone record and pushes it again.
// With an empty undo stack it does nothing.
func (c *Controller) Redo() (rec Record, ok bool, err error) {
	n := len(c.undone)
	if n == 0 {
		return Record{}, false, nil
	}
	rec = c.undone[n-1]
	c.undone = c.undone[:n-1]
	c.active = append(c.active, rec)
	log.Printf("[HISTORY] redo %s", rec.ID)
	return rec.Clone(), true, c.push(rec)
}

// OnAuthoritativeUpdate reconciles active with a full snapshot of the shared
// set. It reports whether active changed; repeated identical snapshots return
// false so callers can skip rendering.
//
// Records that are undone locally, or whose retraction is still queued, stay
// hidden. Records whose push is still queued are kept after the snapshot. The
// open gesture is left alone.
func (c *Controller) OnAuthoritativeUpdate(records []Record) bool {
	hidden := make(map[string]bool, len(c.undone))
	for _, rec := range c.undone {
		hidden[rec.ID] = true
	}
	for _, p := range c.pending {
		if p.op == opRetract {
			hidden[p.rec.ID] = true
		}
	}

	seen := make(map[string]bool, len(records))
	next := make([]Record, 0, len(records))
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			log.Printf("[HISTORY] dropping snapshot entry: %v", err)
			continue
		}
		if hidden[rec.ID] || seen[rec.ID] {
			continue
		}
		seen[rec.ID] = true
		next = append(next, rec.Clone())
	}
	for _, p := range c.pending {
		if p.op == opPush && !seen[p.rec.ID] && !hidden[p.rec.ID] {
			seen[p.rec.ID] = true
			next = append(next, p.rec)
		}
	}

	if slices.EqualFunc(next, c.active, Record.Same) {
		return false
	}
	c.active = next
	return true
}

// Flush retries queued pushes and retractions in order, stopping at the
// first failure.
func (c *Controller) Flush() error {
	for len(c.pending) > 0 {
		p := c.pending[0]
		if err := c.send(p); err != nil {
			return &ReplicationError{Op: p.op, ID: p.rec.ID, Err: err}
		}
		c.pending = c.pending[1:]
		log.Printf("[HISTORY] flushed %s %s", p.op, p.rec.ID)
	}
	c.pending = nil
	return nil
}

func (c *Controller) push(rec Record) error {
	return c.enqueue(pendingOp{op: opPush, rec: rec})
}

func (c *Controller) retract(rec Record) error {
	return c.enqueue(pendingOp{op: opRetract, rec: rec})
}

// enqueue sends p right away unless older operations are still queued, in
// which case p joins the queue to preserve ordering. Only the latest intent
// per record ID is kept.
func (c *Controller) enqueue(p pendingOp) error {
	c.pending = slices.DeleteFunc(c.pending, func(q pendingOp) bool {
		return q.rec.ID == p.rec.ID
	})
	if len(c.pending) > 0 {
		c.pending = append(c.pending, p)
		return &ReplicationError{Op: p.op, ID: p.rec.ID, Err: errQueued}
	}
	if err := c.send(p); err != nil {
		c.pending = append(c.pending, p)
		return &ReplicationError{Op: p.op, ID: p.rec.ID, Err: err}
	}
	return nil
}

func (c *Controller) send(p pendingOp) error {
	if c.replica == nil {
		return nil
	}
	if p.op == opRetract {
		return c.replica.Retract(p.rec.ID)
	}
	return c.replica.Push(p.rec)
}
