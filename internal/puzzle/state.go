// Package puzzle implements the single global client puzzle: its seed,
// difficulty, Argon2 parameters, mining-time accounting, and the difficulty
// controller. All mutation goes through State's mutex, which is the
// system's one atomic critical section.
package puzzle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rawblock/hashpass-engine/internal/puzzlehash"
	"github.com/rawblock/hashpass-engine/pkg/models"
)

// Config holds the puzzle's fixed startup parameters; everything else is
// mutable state guarded by State.mu.
type Config struct {
	DifficultyInitial int
	DifficultyMin     int
	DifficultyMax     int
	TargetWindowMin   time.Duration
	TargetWindowMax   time.Duration
	Argon2            puzzlehash.Params
	WorkerCount       int
}

// recentSolveCap bounds the window used for the straight arithmetic mean
// dashboard field.
const recentSolveCap = 20

// emaAlpha is the smoothing factor for the exponential moving average of
// solve times.
const emaAlpha = 0.3

// State is the puzzle's atomic critical section.
type State struct {
	mu sync.Mutex

	seed        string
	difficulty  int
	dMin, dMax  int
	targetMin   time.Duration
	targetMax   time.Duration
	argon2      puzzlehash.Params
	workerCount int

	startedAt time.Time // wall-clock time the current seed was set, for display only

	miningAccum  time.Duration // monotonic accumulated mining time
	miningActive bool
	resumedAt    time.Time

	lastSolveSeconds float64
	avgSolveSeconds  float64
	recentSolves     []float64
	lastAdjustReason string
}

// New constructs a puzzle with a freshly rotated seed.
func New(cfg Config) (*State, error) {
	seed, err := randomSeed()
	if err != nil {
		return nil, fmt.Errorf("puzzle: generating initial seed: %w", err)
	}

	return &State{
		seed:        seed,
		difficulty:  clamp(cfg.DifficultyInitial, cfg.DifficultyMin, cfg.DifficultyMax),
		dMin:        cfg.DifficultyMin,
		dMax:        cfg.DifficultyMax,
		targetMin:   cfg.TargetWindowMin,
		targetMax:   cfg.TargetWindowMax,
		argon2:      cfg.Argon2,
		workerCount: cfg.WorkerCount,
		startedAt:   time.Now(),
	}, nil
}

func randomSeed() (string, error) {
	b := make([]byte, 16) // 128 bits
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ErrStaleSeed is returned when the seed a caller is comparing against no
// longer matches current state — a normal competitive outcome.
var ErrStaleSeed = errors.New("puzzle: stale seed")

// CurrentSeed returns only the seed, without building a full snapshot;
// callers on the fast precondition path outside the critical section
// (spec §4.7) use this for the early-reject stale-work check. It takes the
// lock briefly since reads must not race with rotation.
func (s *State) CurrentSeed() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seed
}

// Snapshot returns a read-only view of the puzzle for /api/puzzle responses
// and PUZZLE_RESET broadcasts.
func (s *State) Snapshot() models.PuzzleSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() models.PuzzleSnapshot {
	return models.PuzzleSnapshot{
		Seed:             s.seed,
		Difficulty:       s.difficulty,
		MemoryCostKB:     s.argon2.MemoryKB,
		TimeCost:         s.argon2.Time,
		Parallelism:      s.argon2.Parallelism,
		WorkerCount:      s.workerCount,
		PuzzleStartTime:  s.startedAt.Unix(),
		LastSolveTime:    s.lastSolveSeconds,
		AverageSolveTime: s.avgSolveSeconds,
		RecentMeanSolve:  recentMean(s.recentSolves),
	}
}

func recentMean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Argon2Params returns the current hashing parameters, for callers
// dispatching a verification.
func (s *State) Argon2Params() puzzlehash.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.argon2
}

// MiningElapsed returns the puzzle's effective age: accumulated mining time,
// never wall-clock age.
func (s *State) MiningElapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.miningElapsedLocked()
}

func (s *State) miningElapsedLocked() time.Duration {
	if !s.miningActive {
		return s.miningAccum
	}
	return s.miningAccum + time.Since(s.resumedAt)
}

// ResumeMining is called by the connection hub on the 0→1 transition of
// globally active miners. It is a no-op if already active.
func (s *State) ResumeMining() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.miningActive {
		return
	}
	s.miningActive = true
	s.resumedAt = time.Now()
}

// PauseMining is called by the connection hub on the 1→0 transition. It is a
// no-op if already paused.
func (s *State) PauseMining() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauseMiningLocked()
}

func (s *State) pauseMiningLocked() {
	if !s.miningActive {
		return
	}
	s.miningAccum += time.Since(s.resumedAt)
	s.miningActive = false
}

// VerifyInput bundles a single submission's raw fields.
type VerifyInput struct {
	SubmittedSeed string
	Fingerprint   string
	TraceData     string
	Nonce         uint64
	Hash          string
}

// Outcome describes the result of a winning verification, for the caller to
// act on outside the critical section (broadcast, audit, webhook).
type Outcome struct {
	Snapshot        models.PuzzleSnapshot
	OldSeed         string
	DifficultyAt    int
	SolveSeconds    float64
	NewDifficulty   int
	AdjustReason    string
	LeadingZeroBits int
}

// ErrInvalidProof is returned when the recomputed hash does not match or
// does not meet the difficulty target.
var ErrInvalidProof = errors.New("puzzle: invalid proof")

// InvalidProofError wraps ErrInvalidProof with the leading-zero-bit count the
// rejected submission actually achieved, so the caller can feed a near-miss
// into the timeout consolation-code tracker without redoing the hash.
type InvalidProofError struct {
	LeadingZeroBits int
}

func (e *InvalidProofError) Error() string { return ErrInvalidProof.Error() }
func (e *InvalidProofError) Unwrap() error { return ErrInvalidProof }

// Verify performs the atomic critical section described in spec.md §4.7,
// steps 1-6: double-checked seed equality, mining-time measurement, off-
// thread hash verification (still under the lock, by design), difficulty
// adjustment, and seed rotation. Broadcasting, audit logging and webhook
// delivery are the caller's responsibility, performed after this returns.
func (s *State) Verify(ctx context.Context, pool *puzzlehash.Pool, in VerifyInput) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.SubmittedSeed != s.seed {
		return Outcome{}, ErrStaleSeed
	}

	elapsed := s.miningElapsedLocked()
	solveSeconds := elapsed.Seconds()

	result, err := pool.Dispatch(ctx, puzzlehash.Input{
		Nonce:       in.Nonce,
		Seed:        s.seed,
		Fingerprint: in.Fingerprint,
		TraceBlob:   in.TraceData,
		Params:      s.argon2,
	}, in.Hash, s.difficulty)
	if err != nil {
		return Outcome{}, err
	}
	if !result.MeetsDifficulty {
		return Outcome{}, &InvalidProofError{LeadingZeroBits: result.LeadingZeroBits}
	}

	oldSeed := s.seed
	difficultyAt := s.difficulty

	newDifficulty, reason := s.adjustDifficultyLocked(solveSeconds)
	s.recordSolveLocked(solveSeconds)
	s.rotateSeedLocked()

	return Outcome{
		Snapshot:        s.snapshotLocked(),
		OldSeed:         oldSeed,
		DifficultyAt:    difficultyAt,
		SolveSeconds:    solveSeconds,
		NewDifficulty:   newDifficulty,
		AdjustReason:    reason,
		LeadingZeroBits: result.LeadingZeroBits,
	}, nil
}

func (s *State) recordSolveLocked(solveSeconds float64) {
	s.lastSolveSeconds = solveSeconds
	if s.avgSolveSeconds == 0 {
		s.avgSolveSeconds = solveSeconds
	} else {
		s.avgSolveSeconds = emaAlpha*solveSeconds + (1-emaAlpha)*s.avgSolveSeconds
	}
	s.recentSolves = append(s.recentSolves, solveSeconds)
	if len(s.recentSolves) > recentSolveCap {
		s.recentSolves = s.recentSolves[len(s.recentSolves)-recentSolveCap:]
	}
}

func (s *State) rotateSeedLocked() {
	seed, err := randomSeed()
	if err != nil {
		// crypto/rand failure is unrecoverable for this process; keeping
		// the old seed would let a solved puzzle linger forever, so panic
		// rather than silently fail a core security property.
		panic(fmt.Sprintf("puzzle: failed to rotate seed: %v", err))
	}
	s.seed = seed
	s.startedAt = time.Now()
	// Mining-time accounting restarts at zero for the new round. If miners
	// are still actively mining across the rotation (no 0→1/1→0 transition
	// happens on a win), keep the "active" flag as-is and simply re-stamp
	// resumedAt so elapsed time is measured from this instant — rediscovering
	// activity only from hub transitions would otherwise freeze the clock
	// until someone happens to stop and restart mining.
	s.miningAccum = 0
	if s.miningActive {
		s.resumedAt = time.Now()
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
