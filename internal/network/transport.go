package network

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 20
	sendBuffer     = 64
)

// peer is one websocket participant connected to the host.
type peer struct {
	conn *websocket.Conn
	addr string
	send chan Message

	closeOnce sync.Once
}

func newPeer(conn *websocket.Conn) *peer {
	return &peer{
		conn: conn,
		addr: conn.RemoteAddr().String(),
		send: make(chan Message, sendBuffer),
	}
}

// enqueue reports false when the peer's buffer is full.
func (p *peer) enqueue(msg Message) bool {
	select {
	case p.send <- msg:
		return true
	default:
		return false
	}
}

// close must be called with the hub lock held, so send is never closed
// under a concurrent enqueue.
func (p *peer) close() {
	p.closeOnce.Do(func() { close(p.send) })
}

func (p *peer) readPump(h *Hub) {
	defer func() {
		h.unregister(p)
		p.conn.Close()
	}()
	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg Message
		if err := p.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[HUB] read from %s: %v", p.addr, err)
			}
			return
		}
		h.handle(p, msg)
	}
}

func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteJSON(msg); err != nil {
				log.Printf("[HUB] write to %s: %v", p.addr, err)
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
