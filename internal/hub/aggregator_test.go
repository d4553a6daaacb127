package hub

import (
	"testing"
	"time"
)

func TestAggregate_SumsActiveRatesAndDropsStale(t *testing.T) {
	h := newTestHub()
	h.rates["fresh-a"] = hashrateEntry{rate: 100, at: time.Now()}
	h.rates["fresh-b"] = hashrateEntry{rate: 50, at: time.Now()}
	h.rates["stale"] = hashrateEntry{rate: 999, at: time.Now().Add(-2 * hashrateStaleAfter)}

	total, active := h.aggregate()

	if active != 2 {
		t.Fatalf("expected 2 active miners after dropping the stale entry, got %d", active)
	}
	if total != 150 {
		t.Fatalf("expected total hashrate 150, got %v", total)
	}
	if _, stillThere := h.rates["stale"]; stillThere {
		t.Fatalf("expected the stale entry to be pruned from the rate map")
	}
}

func TestReportHashrate_FlagsOverspeed(t *testing.T) {
	h := newTestHub()
	h.cfg.MaxNonceSpeed = 10

	ch := &Channel{ID: "over", IP: "1.2.3.4"}
	h.reportHashrate(ch, 99)

	overspeed := h.OverspeedChannels()
	if len(overspeed) != 1 || overspeed[0] != "over" {
		t.Fatalf("expected channel %q to be flagged overspeed, got %v", ch.ID, overspeed)
	}
}

func TestReportHashrate_NoCeilingNeverFlags(t *testing.T) {
	h := newTestHub()
	// MaxNonceSpeed left at zero: no ceiling configured.

	ch := &Channel{ID: "fast", IP: "1.2.3.4"}
	h.reportHashrate(ch, 1_000_000)

	if overspeed := h.OverspeedChannels(); len(overspeed) != 0 {
		t.Fatalf("expected no overspeed flags when MaxNonceSpeed is unset, got %v", overspeed)
	}
}
