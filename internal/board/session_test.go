package board

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SketchBoard/internal/network"
	"SketchBoard/internal/render"
	"SketchBoard/internal/state"
)

const size = 64

type flakyReplica struct {
	fail   bool
	pushed []string
}

func (r *flakyReplica) Push(rec state.Record) error {
	if r.fail {
		return errors.New("offline")
	}
	r.pushed = append(r.pushed, rec.ID)
	return nil
}

func (r *flakyReplica) Retract(string) error {
	if r.fail {
		return errors.New("offline")
	}
	return nil
}

type frames struct {
	mu   sync.Mutex
	n    int
	last *image.RGBA
}

func (f *frames) add(img *image.RGBA) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	f.last = img
}

func (f *frames) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

func start(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func records(t *testing.T, s *Session) []state.Record {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := s.Records(ctx)
	require.NoError(t, err)
	return got
}

func TestSessionDrawsAndPublishesFrames(t *testing.T) {
	s := New(state.NewController(nil, "me"), size, size)
	var f frames
	s.OnFrame = f.add
	start(t, s)

	s.SetColor("red")
	s.SetThickness(4)
	s.PointerDown(state.Point{X: 10, Y: 10})
	s.PointerMove(state.Point{X: 20, Y: 10})
	s.PointerMove(state.Point{X: 20, Y: 20})
	s.PointerUp()

	got := records(t, s)
	require.Len(t, got, 1)
	assert.Equal(t, []state.Point{{X: 10, Y: 10}, {X: 20, Y: 10}, {X: 20, Y: 20}}, got[0].Points)
	assert.Equal(t, "#ff0000", got[0].Color)

	// initial blank frame, down, two moves, up
	assert.Equal(t, 5, f.count())
	want := render.NewSurface(size, size)
	want.Render(got)
	f.mu.Lock()
	assert.Equal(t, want.Image().Pix, f.last.Pix)
	f.mu.Unlock()
}

func TestSessionIgnoresStrayEvents(t *testing.T) {
	s := New(state.NewController(nil, "me"), size, size)
	var f frames
	s.OnFrame = f.add
	start(t, s)

	s.PointerMove(state.Point{X: 1, Y: 1})
	s.PointerUp()
	s.PointerLeave()
	s.Undo()
	s.Redo()

	assert.Empty(t, records(t, s))
	assert.Equal(t, 1, f.count())
}

func TestSessionUndoRedoClear(t *testing.T) {
	s := New(state.NewController(nil, "me"), size, size)
	start(t, s)

	s.PointerDown(state.Point{X: 5, Y: 5})
	s.PointerLeave()
	s.SetEraser(true)
	s.PointerDown(state.Point{X: 5, Y: 5})
	s.PointerUp()
	got := records(t, s)
	require.Len(t, got, 2)
	assert.Equal(t, state.KindErase, got[1].Kind)

	s.Undo()
	assert.Len(t, records(t, s), 1)
	s.Redo()
	assert.Len(t, records(t, s), 2)

	s.Clear()
	got = records(t, s)
	require.Len(t, got, 3)
	assert.Equal(t, state.KindClear, got[2].Kind)
}

func TestReconcileSkipsDuplicateSnapshot(t *testing.T) {
	s := New(state.NewController(nil, "me"), size, size)
	var f frames
	s.OnFrame = f.add

	rec, err := state.NewRecord(state.KindDraw, []state.Point{{X: 3, Y: 3}}, "blue", 5)
	require.NoError(t, err)
	snapshot := []state.Record{rec}

	s.paint(s.reconcile(snapshot))
	assert.Equal(t, 1, f.count())
	s.paint(s.reconcile([]state.Record{rec.Clone()}))
	assert.Equal(t, 1, f.count())
	assert.False(t, isBlank(f.last))
}

func TestReconcileFlushesPending(t *testing.T) {
	replica := &flakyReplica{fail: true}
	s := New(state.NewController(replica, "me"), size, size)
	var warnings []error
	s.OnWarning = func(err error) { warnings = append(warnings, err) }

	s.paint(pointerDown{state.Point{X: 1, Y: 1}}.apply(s))
	s.paint(pointerUp{}.apply(s))
	require.Len(t, warnings, 1)
	var rErr *state.ReplicationError
	assert.ErrorAs(t, warnings[0], &rErr)
	assert.Equal(t, 1, s.ctrl.Pending())

	replica.fail = false
	s.reconcile(nil)
	assert.Zero(t, s.ctrl.Pending())
	assert.Len(t, replica.pushed, 1)
	// the optimistic record survived the empty snapshot
	assert.Len(t, s.ctrl.Active(), 1)
}

func TestSessionsConvergeThroughHub(t *testing.T) {
	hub := network.NewHub(nil, nil)
	defer hub.Close()

	alice := New(state.NewController(hub, "alice"), size, size)
	bob := New(state.NewController(hub, "bob"), size, size)
	var aliceFrames, bobFrames frames
	alice.OnFrame = aliceFrames.add
	bob.OnFrame = bobFrames.add
	defer hub.Subscribe(alice.Deliver)()
	defer hub.Subscribe(bob.Deliver)()
	start(t, alice)
	start(t, bob)

	alice.PointerDown(state.Point{X: 10, Y: 10})
	alice.PointerMove(state.Point{X: 40, Y: 40})
	alice.PointerUp()
	bob.SetColor("green")
	bob.PointerDown(state.Point{X: 50, Y: 10})
	bob.PointerUp()

	require.Eventually(t, func() bool {
		return len(hub.Snapshot()) == 2
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		a, b := records(t, alice), records(t, bob)
		return len(a) == 2 && len(b) == 2 && a[0].ID == b[0].ID && a[1].ID == b[1].ID
	}, 2*time.Second, 10*time.Millisecond)

	alice.Undo()
	require.Eventually(t, func() bool {
		return len(records(t, bob)) == 1 && len(hub.Snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func isBlank(img *image.RGBA) bool {
	for _, v := range img.Pix {
		if v != 0xff {
			return false
		}
	}
	return true
}
