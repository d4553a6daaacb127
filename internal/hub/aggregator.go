package hub

import (
	"time"

	"github.com/rawblock/hashpass-engine/pkg/models"
)

// hashrateStaleAfter marks a per-client hashrate report absent once this
// old (spec.md §3, §4.6).
const hashrateStaleAfter = 10 * time.Second

type hashrateEntry struct {
	rate      float64
	at        time.Time
	ip        string
	flagged   bool
}

// reportHashrate records ch's latest self-reported rate. Reports above the
// configured ceiling are flagged but never invalidate work by themselves.
func (h *Hub) reportHashrate(ch *Channel, rate float64) {
	maxSpeed := h.maxNonceSpeed()
	flagged := maxSpeed > 0 && rate > maxSpeed

	h.ratesMu.Lock()
	h.rates[ch.ID] = hashrateEntry{rate: rate, at: time.Now(), ip: ch.IP, flagged: flagged}
	h.ratesMu.Unlock()
}

// aggregate drops stale entries, sums the rest, and counts distinct active
// miners. Kept as its own method (not embedded in the tick loop) so tests can
// call it directly without waiting on a ticker.
func (h *Hub) aggregate() (total float64, activeMiners int) {
	cutoff := time.Now().Add(-hashrateStaleAfter)

	h.ratesMu.Lock()
	for id, e := range h.rates {
		if e.at.Before(cutoff) {
			delete(h.rates, id)
			continue
		}
		total += e.rate
		activeMiners++
	}
	h.ratesMu.Unlock()

	return total, activeMiners
}

// StartAggregator launches the periodic hashrate-aggregation task. It
// returns a stop function.
func (h *Hub) StartAggregator(period time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				total, active := h.aggregate()
				h.Broadcast(models.OutboundMessage{
					Type:          models.MsgNetworkHashrate,
					TotalHashrate: total,
					ActiveMiners:  active,
					Timestamp:     time.Now().Unix(),
				})
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

// OverspeedChannels returns the IDs of channels currently flagged for
// exceeding max_nonce_speed, for the admin plane's miner listing.
func (h *Hub) OverspeedChannels() []string {
	h.ratesMu.Lock()
	defer h.ratesMu.Unlock()

	var out []string
	for id, e := range h.rates {
		if e.flagged {
			out = append(out, id)
		}
	}
	return out
}
