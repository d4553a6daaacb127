// Package hub implements the connection hub: the realtime channel set,
// broadcast, per-connection message routing, and the hashrate aggregator
// that rides on the same channel set.
package hub

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// outboundQueueSize bounds each channel's outbound buffer. A slow reader is
// closed rather than allowed to back-pressure the hub (spec.md §4.5).
const outboundQueueSize = 32

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Channel is one live realtime connection.
type Channel struct {
	ID           string
	conn         *websocket.Conn
	SessionToken string
	IP           string
	ConnectedAt  time.Time

	mu           sync.Mutex
	miningActive bool

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newChannel(id, token, ip string, conn *websocket.Conn) *Channel {
	return &Channel{
		ID:           id,
		conn:         conn,
		SessionToken: token,
		IP:           ip,
		ConnectedAt:  time.Now(),
		send:         make(chan []byte, outboundQueueSize),
		done:         make(chan struct{}),
	}
}

// MiningActive reports the channel's current mining flag.
func (c *Channel) MiningActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.miningActive
}

func (c *Channel) setMiningActive(v bool) {
	c.mu.Lock()
	c.miningActive = v
	c.mu.Unlock()
}

// enqueue attempts a non-blocking send; if the channel's outbound queue is
// full, the channel is considered too slow and gets closed. send is never
// closed (see close below), so this never races a send against a close.
func (c *Channel) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// writePump drains the outbound queue to the socket. Exits when the
// channel is closed.
func (c *Channel) writePump() {
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Channel) writeJSON(v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("hub: marshal outbound message: %v", err)
		return false
	}
	return c.enqueue(b)
}

// close shuts the channel down exactly once. It never closes send: enqueue
// is called from arbitrary goroutines (Broadcast, SendTo, the handshake),
// and closing a channel other senders write to is a send-on-closed-channel
// panic waiting to happen. done alone is enough to stop writePump.
func (c *Channel) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
