package hub

import (
	"sync"
	"time"

	"github.com/rawblock/hashpass-engine/pkg/models"
)

// submissionMark is the best attempt seen from one channel during the
// current puzzle round, used to pick a timeout consolation-code recipient.
type submissionMark struct {
	leadingZeroBits int
	fingerprint     string
	nonce           uint64
	at              time.Time
}

// submissionTracker records the best submission per channel so the timeout
// watcher can pick a consolation-code recipient without coupling the hub to
// the verify path's internals.
type submissionTracker struct {
	mu    sync.Mutex
	marks map[string]submissionMark
}

func newSubmissionTracker() *submissionTracker {
	return &submissionTracker{marks: make(map[string]submissionMark)}
}

// RecordSubmission is called by the verify path for every submission
// (accepted or not) so the channel with the closest attempt is known even
// if no one ever wins the round.
func (h *Hub) RecordSubmission(channelID, fingerprint string, nonce uint64, leadingZeroBits int) {
	h.submissions.mu.Lock()
	defer h.submissions.mu.Unlock()

	now := time.Now()
	prev, ok := h.submissions.marks[channelID]
	if !ok || leadingZeroBits > prev.leadingZeroBits {
		h.submissions.marks[channelID] = submissionMark{
			leadingZeroBits: leadingZeroBits,
			fingerprint:     fingerprint,
			nonce:           nonce,
			at:              now,
		}
	}
}

// BestSubmitter returns the channel ID with the greatest leading-zero-bit
// count across the round, tie-broken by earliest submission. Returns ""
// if no submissions were recorded.
func (h *Hub) BestSubmitter() string {
	id, _ := h.bestSubmission()
	return id
}

func (h *Hub) bestSubmission() (string, submissionMark) {
	h.submissions.mu.Lock()
	defer h.submissions.mu.Unlock()

	var bestID string
	var best submissionMark
	for id, mark := range h.submissions.marks {
		if bestID == "" ||
			mark.leadingZeroBits > best.leadingZeroBits ||
			(mark.leadingZeroBits == best.leadingZeroBits && mark.at.Before(best.at)) {
			bestID = id
			best = mark
		}
	}
	return bestID, best
}

// ChannelBySessionToken finds the channel currently bound to a session
// token, for the verify path to attribute a submission to a realtime
// channel. Returns false if no channel is connected under that token (an
// HTTP-only client with no open realtime channel never competes for the
// consolation code).
func (h *Hub) ChannelBySessionToken(token string) (*Channel, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.channels {
		if ch.SessionToken == token {
			return ch, true
		}
	}
	return nil, false
}

// ResetSubmissions clears the per-round tracker; called after every seed
// rotation (win or timeout) so consolation eligibility never carries across
// rounds.
func (h *Hub) ResetSubmissions() {
	h.submissions.mu.Lock()
	h.submissions.marks = make(map[string]submissionMark)
	h.submissions.mu.Unlock()
}

// BroadcastPuzzleReset sends PUZZLE_RESET to every connected channel.
func (h *Hub) BroadcastPuzzleReset(snap models.PuzzleSnapshot, solveSeconds float64, isTimeout bool) {
	h.Broadcast(models.OutboundMessage{
		Type:             models.MsgPuzzleReset,
		Seed:             snap.Seed,
		Difficulty:       snap.Difficulty,
		SolveTime:        solveSeconds,
		AverageSolveTime: snap.AverageSolveTime,
		PuzzleStartTime:  snap.PuzzleStartTime,
		IsTimeout:        isTimeout,
	})
	h.ResetSubmissions()
}

// BestSubmissionContext returns the fingerprint and nonce of the round's
// best submission, for minting a consolation code, plus the channel ID to
// deliver it to. ok is false if no submissions were recorded this round.
func (h *Hub) BestSubmissionContext() (channelID, fingerprint string, nonce uint64, ok bool) {
	id, mark := h.bestSubmission()
	if id == "" {
		return "", "", 0, false
	}
	return id, mark.fingerprint, mark.nonce, true
}

// DeliverConsolationCode sends the best-effort TIMEOUT_INVITE_CODE to
// channelID.
func (h *Hub) DeliverConsolationCode(channelID, code string) bool {
	return h.SendTo(channelID, models.OutboundMessage{Type: models.MsgTimeoutInviteCode, InviteCode: code})
}
