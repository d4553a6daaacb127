package hub

import (
	"encoding/json"
	"log"

	"github.com/gorilla/websocket"

	"github.com/rawblock/hashpass-engine/pkg/models"
)

// readLoop pumps inbound frames until the connection errors or closes.
// Unknown message types are rejected rather than silently ignored, per the
// Design Notes' "tagged variants, reject unknown variants" guidance.
func (h *Hub) readLoop(ch *Channel) {
	for {
		_, data, err := ch.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("hub: channel %s read error: %v", ch.ID, err)
			}
			return
		}

		var msg models.InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("hub: channel %s sent malformed message: %v", ch.ID, err)
			continue
		}

		h.dispatch(ch, msg)
	}
}

func (h *Hub) dispatch(ch *Channel, msg models.InboundMessage) {
	switch msg.Type {
	case models.MsgPing:
		ch.writeJSON(models.OutboundMessage{Type: models.MsgPong, Online: h.ActiveChannelCount()})
	case models.MsgMiningStart:
		h.setMining(ch, true)
	case models.MsgMiningStop:
		h.setMining(ch, false)
	case models.MsgHashrate:
		h.reportHashrate(ch, msg.Rate)
	default:
		log.Printf("hub: channel %s sent unknown message type %q", ch.ID, msg.Type)
	}
}

// setMining toggles ch's mining flag and drives the global 0→1/1→0
// transitions that control mining-time accounting (spec.md §4.5).
func (h *Hub) setMining(ch *Channel, active bool) {
	if ch.MiningActive() == active {
		return
	}
	ch.setMiningActive(active)

	h.mu.Lock()
	wasEmpty := len(h.activeMiners) == 0
	if active {
		h.activeMiners[ch.ID] = struct{}{}
	} else {
		delete(h.activeMiners, ch.ID)
	}
	nowEmpty := len(h.activeMiners) == 0
	h.mu.Unlock()

	switch {
	case active && wasEmpty:
		h.puzzleSt.ResumeMining()
	case !active && nowEmpty:
		h.puzzleSt.PauseMining()
	}
}

// Broadcast sends payload to every connected channel. Per-recipient
// delivery is non-blocking: a channel whose outbound queue is full is
// closed instead of allowed to back-pressure the hub.
func (h *Hub) Broadcast(payload models.OutboundMessage) {
	h.mu.RLock()
	targets := make([]*Channel, 0, len(h.channels))
	for _, ch := range h.channels {
		targets = append(targets, ch)
	}
	h.mu.RUnlock()

	for _, ch := range targets {
		if !ch.writeJSON(payload) {
			go h.unregister(ch)
		}
	}
}

// SendTo delivers payload to a single channel by ID, for the timeout
// watcher's best-effort consolation-code delivery.
func (h *Hub) SendTo(channelID string, payload models.OutboundMessage) bool {
	h.mu.RLock()
	ch, ok := h.channels[channelID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return ch.writeJSON(payload)
}
