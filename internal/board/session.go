// Package board runs one participant's drawing session. Pointer input,
// control changes and snapshots from the replication layer all arrive as
// events on a single goroutine, so the history controller and the canvas
// are never touched concurrently.
package board

import (
	"context"
	"errors"
	"image"
	"log"
	"sync"

	"SketchBoard/internal/render"
	"SketchBoard/internal/state"
)

// ErrStopped is returned by queries made after Run has returned.
var ErrStopped = errors.New("session stopped")

type repaint int

const (
	repaintNone repaint = iota
	// repaintTail paints only the newest segment of the open gesture.
	repaintTail
	repaintFull
)

type event interface {
	apply(s *Session) repaint
}

// Session couples a history controller with a canvas surface.
type Session struct {
	ctrl    *state.Controller
	surface *render.Surface

	// OnFrame receives a copy of the canvas after every repaint. It runs on
	// the session goroutine and must not block.
	OnFrame func(*image.RGBA)
	// OnWarning receives replication failures. Local state is kept.
	OnWarning func(error)

	events chan event
	done   chan struct{}

	// newest undelivered snapshot, latest wins
	snapMu    sync.Mutex
	snapshot  []state.Record
	snapReady bool
	snapWake  chan struct{}
}

// New returns a session drawing on a width x height canvas.
func New(ctrl *state.Controller, width, height int) *Session {
	return &Session{
		ctrl:     ctrl,
		surface:  render.NewSurface(width, height),
		events:   make(chan event, 256),
		done:     make(chan struct{}),
		snapWake: make(chan struct{}, 1),
	}
}

// Run processes events until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	s.paint(repaintFull)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			s.paint(ev.apply(s))
		case <-s.snapWake:
			s.snapMu.Lock()
			records, ready := s.snapshot, s.snapReady
			s.snapshot, s.snapReady = nil, false
			s.snapMu.Unlock()
			if ready {
				s.paint(s.reconcile(records))
			}
		}
	}
}

// Deliver hands an authoritative snapshot to the session. It never blocks;
// a snapshot not yet processed is replaced by a newer one.
func (s *Session) Deliver(records []state.Record) {
	s.snapMu.Lock()
	s.snapshot = records
	s.snapReady = true
	s.snapMu.Unlock()
	select {
	case s.snapWake <- struct{}{}:
	default:
	}
}

func (s *Session) PointerDown(p state.Point) { s.post(pointerDown{p}) }
func (s *Session) PointerMove(p state.Point) { s.post(pointerMove{p}) }
func (s *Session) PointerUp()                { s.post(pointerUp{}) }
func (s *Session) PointerLeave()             { s.post(pointerUp{}) }
func (s *Session) Undo()                     { s.post(undo{}) }
func (s *Session) Redo()                     { s.post(redo{}) }
func (s *Session) Clear()                    { s.post(clearAll{}) }
func (s *Session) SetColor(col string)       { s.post(setColor{col}) }
func (s *Session) SetThickness(t float32)    { s.post(setThickness{t}) }
func (s *Session) SetEraser(on bool)         { s.post(setEraser{on}) }

// Flush retries replication operations that failed earlier.
func (s *Session) Flush() { s.post(flush{}) }

// Records returns the active records as the session sees them.
func (s *Session) Records(ctx context.Context) ([]state.Record, error) {
	reply := make(chan []state.Record, 1)
	if !s.post(query{reply}) {
		return nil, ErrStopped
	}
	select {
	case records := <-reply:
		return records, nil
	case <-s.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// post queues ev in arrival order. It reports false once Run has returned.
func (s *Session) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) reconcile(records []state.Record) repaint {
	changed := s.ctrl.OnAuthoritativeUpdate(records)
	if s.ctrl.Pending() > 0 {
		s.warn(s.ctrl.Flush())
	}
	if !changed {
		return repaintNone
	}
	return repaintFull
}

func (s *Session) paint(mode repaint) {
	switch mode {
	case repaintNone:
		return
	case repaintTail:
		g, ok := s.ctrl.Gesture()
		if !ok {
			return
		}
		s.surface.PaintTail(g, len(g.Points)-1)
	case repaintFull:
		s.surface.Render(s.ctrl.Frame())
	}
	if s.OnFrame != nil {
		s.OnFrame(s.surface.Snapshot())
	}
}

func (s *Session) warn(err error) {
	if err == nil {
		return
	}
	log.Printf("[SYNC] %v", err)
	if s.OnWarning != nil {
		s.OnWarning(err)
	}
}

type pointerDown struct{ p state.Point }

func (e pointerDown) apply(s *Session) repaint {
	s.warn(s.ctrl.BeginGesture(e.p))
	return repaintFull
}

type pointerMove struct{ p state.Point }

func (e pointerMove) apply(s *Session) repaint {
	if !s.ctrl.Accumulating() {
		return repaintNone
	}
	s.ctrl.ExtendGesture(e.p)
	return repaintTail
}

type pointerUp struct{}

func (pointerUp) apply(s *Session) repaint {
	_, ok, err := s.ctrl.EndGesture()
	s.warn(err)
	if !ok {
		return repaintNone
	}
	return repaintFull
}

type undo struct{}

func (undo) apply(s *Session) repaint {
	_, ok, err := s.ctrl.Undo()
	s.warn(err)
	if !ok {
		return repaintNone
	}
	return repaintFull
}

type redo struct{}

func (redo) apply(s *Session) repaint {
	_, ok, err := s.ctrl.Redo()
	s.warn(err)
	if !ok {
		return repaintNone
	}
	return repaintFull
}

type clearAll struct{}

func (clearAll) apply(s *Session) repaint {
	_, err := s.ctrl.ClearAll()
	s.warn(err)
	return repaintFull
}

type setColor struct{ col string }

func (e setColor) apply(s *Session) repaint {
	s.ctrl.SetColor(e.col)
	return repaintNone
}

type setThickness struct{ t float32 }

func (e setThickness) apply(s *Session) repaint {
	s.ctrl.SetThickness(e.t)
	return repaintNone
}

type setEraser struct{ on bool }

func (e setEraser) apply(s *Session) repaint {
	s.ctrl.SetEraser(e.on)
	return repaintNone
}

type flush struct{}

func (flush) apply(s *Session) repaint {
	s.warn(s.ctrl.Flush())
	return repaintNone
}

type query struct{ reply chan<- []state.Record }

func (e query) apply(s *Session) repaint {
	e.reply <- s.ctrl.Active()
	return repaintNone
}
