package puzzle

import (
	"context"
	"time"
)

// pollInterval is how often the watcher rechecks mining-time age against
// Tmax. It does not need to be precise to the millisecond — the spec only
// requires the watcher fires once the lifetime is exceeded.
const pollInterval = 500 * time.Millisecond

// Watcher owns the single timeout-watch goroutine for one puzzle round. It
// is cancelled and recreated on every seed rotation (spec.md §5,
// "Cancellation").
type Watcher struct {
	cancel context.CancelFunc
}

// OnTimeout is invoked when the puzzle's mining-time age exceeds Tmax with
// no winner. It receives the Outcome of State.Timeout(), already applied.
type OnTimeout func(Outcome)

// StartWatcher launches a goroutine that polls s's mining-time age and
// calls onTimeout exactly once when it first exceeds the target window's
// max, then returns (the caller is expected to start a fresh Watcher for
// the new round). Call Stop to cancel it early, e.g. on a winning
// submission or an admin-triggered reset.
func StartWatcher(s *State, onTimeout OnTimeout) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{cancel: cancel}

	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s.MiningElapsed() > s.targetMaxSnapshot() {
					onTimeout(s.Timeout())
					return
				}
			}
		}
	}()

	return w
}

// Stop cancels the watcher's goroutine. Safe to call multiple times.
func (w *Watcher) Stop() {
	if w != nil && w.cancel != nil {
		w.cancel()
	}
}

func (s *State) targetMaxSnapshot() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetMax
}
