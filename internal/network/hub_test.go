package network

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SketchBoard/internal/state"
)

func draw(t *testing.T, x float32) state.Record {
	t.Helper()
	rec, err := state.NewRecord(state.KindDraw, []state.Point{{X: x, Y: x}}, "blue", 2)
	require.NoError(t, err)
	return rec
}

func ids(records []state.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

// latest collects the most recent snapshot a subscriber saw.
type latest struct {
	mu  sync.Mutex
	got []state.Record
	n   int
}

func (l *latest) set(records []state.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = records
	l.n++
}

func (l *latest) ids() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ids(l.got)
}

type failingStore struct{ err error }

func (s failingStore) Upsert(context.Context, state.Record) error { return s.err }
func (s failingStore) Delete(context.Context, string) error       { return s.err }

func TestHubPushAppendsAndUpserts(t *testing.T) {
	h := NewHub(nil, nil)
	a, b := draw(t, 1), draw(t, 2)
	require.NoError(t, h.Push(a))
	require.NoError(t, h.Push(b))

	a.Points = append(a.Points, state.Point{X: 9, Y: 9})
	require.NoError(t, h.Push(a))

	got := h.Snapshot()
	assert.Equal(t, []string{a.ID, b.ID}, ids(got))
	assert.Len(t, got[0].Points, 2)
}

func TestHubRetract(t *testing.T) {
	h := NewHub(nil, nil)
	a, b := draw(t, 1), draw(t, 2)
	require.NoError(t, h.Push(a))
	require.NoError(t, h.Push(b))

	require.NoError(t, h.Retract("unknown"))
	require.NoError(t, h.Retract(a.ID))
	assert.Equal(t, []string{b.ID}, ids(h.Snapshot()))

	// pushing a retracted id again appends it
	require.NoError(t, h.Push(a))
	assert.Equal(t, []string{b.ID, a.ID}, ids(h.Snapshot()))
}

func TestHubRejectsInvalidRecord(t *testing.T) {
	h := NewHub(nil, nil)
	err := h.Push(state.Record{ID: "x", Kind: state.KindErase})
	var vErr *state.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Empty(t, h.Snapshot())
}

func TestHubStoreFailureLeavesSetUnchanged(t *testing.T) {
	boom := errors.New("disk full")
	seed := draw(t, 1)
	h := NewHub(failingStore{err: boom}, []state.Record{seed})

	err := h.Push(draw(t, 2))
	require.ErrorIs(t, err, boom)
	err = h.Retract(seed.ID)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{seed.ID}, ids(h.Snapshot()))
}

func TestNewHubSkipsInvalidSeed(t *testing.T) {
	a := draw(t, 1)
	h := NewHub(nil, []state.Record{a, {ID: "bad"}, a})
	assert.Equal(t, []string{a.ID}, ids(h.Snapshot()))
}

func TestHubSubscribe(t *testing.T) {
	h := NewHub(nil, nil)
	defer h.Close()
	a := draw(t, 1)
	require.NoError(t, h.Push(a))

	var l latest
	cancel := h.Subscribe(l.set)
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{a.ID}, l.ids())
	}, time.Second, 5*time.Millisecond)

	b := draw(t, 2)
	require.NoError(t, h.Push(b))
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{a.ID, b.ID}, l.ids())
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, h.Push(draw(t, 3)))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{a.ID, b.ID}, l.ids())
}

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) []state.Record {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, TypeSnapshot, msg.Type)
	return msg.Records
}

func TestHubWebsocketPeer(t *testing.T) {
	a := draw(t, 1)
	h := NewHub(nil, []state.Record{a})
	defer h.Close()
	conn := dialHub(t, h)

	// new peers get the current set right away
	assert.Equal(t, []string{a.ID}, ids(readSnapshot(t, conn)))

	b := draw(t, 2)
	require.NoError(t, conn.WriteJSON(Message{Type: TypePush, Record: &b}))
	got := readSnapshot(t, conn)
	assert.Equal(t, []string{a.ID, b.ID}, ids(got))
	assert.True(t, got[1].Same(b))

	require.NoError(t, conn.WriteJSON(Message{Type: TypeRetract, ID: a.ID}))
	assert.Equal(t, []string{b.ID}, ids(readSnapshot(t, conn)))
	assert.Equal(t, []string{b.ID}, ids(h.Snapshot()))
}

func TestHubFansOutToEveryPeer(t *testing.T) {
	h := NewHub(nil, nil)
	defer h.Close()
	first, second := dialHub(t, h), dialHub(t, h)
	readSnapshot(t, first)
	readSnapshot(t, second)

	rec := draw(t, 1)
	require.NoError(t, first.WriteJSON(Message{Type: TypePush, Record: &rec}))
	assert.Equal(t, []string{rec.ID}, ids(readSnapshot(t, first)))
	assert.Equal(t, []string{rec.ID}, ids(readSnapshot(t, second)))
}

func TestHubIgnoresInvalidPeerRecord(t *testing.T) {
	h := NewHub(nil, nil)
	defer h.Close()
	conn := dialHub(t, h)
	readSnapshot(t, conn)

	require.NoError(t, conn.WriteJSON(Message{Type: TypePush, Record: &state.Record{ID: "x", Kind: state.KindDraw}}))
	require.NoError(t, conn.WriteJSON(Message{Type: TypePush}))
	good := draw(t, 1)
	require.NoError(t, conn.WriteJSON(Message{Type: TypePush, Record: &good}))

	assert.Equal(t, []string{good.ID}, ids(readSnapshot(t, conn)))
}
