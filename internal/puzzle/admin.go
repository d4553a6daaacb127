package puzzle

import (
	"fmt"
	"time"
)

// ParamUpdate carries the subset of puzzle parameters the admin plane may
// change. A nil field means "leave unchanged"; a non-nil pointer to zero is
// a deliberate zero.
type ParamUpdate struct {
	Difficulty        *int
	DifficultyMin     *int
	DifficultyMax     *int
	TargetWindowMin   *float64 // seconds
	TargetWindowMax   *float64 // seconds
	Argon2Time        *uint32
	Argon2MemoryKB    *uint32
	Argon2Parallelism *uint8
	WorkerCount       *int
}

// ErrInvalidParams is returned when an update would leave the puzzle in an
// inconsistent state (Dmin > Dmax, or Tmin >= Tmax).
var ErrInvalidParams = fmt.Errorf("puzzle: invalid parameter update")

// SetParams applies an admin-issued parameter change. Any successful change
// rotates the seed exactly once, per spec.md §3's invariant. Returns the
// outcome used for the follow-up broadcast.
func (s *State) SetParams(u ParamUpdate) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dMin, dMax := s.dMin, s.dMax
	if u.DifficultyMin != nil {
		dMin = *u.DifficultyMin
	}
	if u.DifficultyMax != nil {
		dMax = *u.DifficultyMax
	}
	if dMin > dMax {
		return Outcome{}, ErrInvalidParams
	}

	tMin, tMax := s.targetMin, s.targetMax
	if u.TargetWindowMin != nil {
		tMin = secondsToDuration(*u.TargetWindowMin)
	}
	if u.TargetWindowMax != nil {
		tMax = secondsToDuration(*u.TargetWindowMax)
	}
	if tMin >= tMax {
		return Outcome{}, ErrInvalidParams
	}

	oldSeed := s.seed
	difficultyAt := s.difficulty

	s.dMin, s.dMax = dMin, dMax
	s.targetMin, s.targetMax = tMin, tMax
	if u.Difficulty != nil {
		s.difficulty = clamp(*u.Difficulty, s.dMin, s.dMax)
	} else {
		s.difficulty = clamp(s.difficulty, s.dMin, s.dMax)
	}
	if u.Argon2Time != nil {
		s.argon2.Time = *u.Argon2Time
	}
	if u.Argon2MemoryKB != nil {
		s.argon2.MemoryKB = *u.Argon2MemoryKB
	}
	if u.Argon2Parallelism != nil {
		s.argon2.Parallelism = *u.Argon2Parallelism
	}
	if u.WorkerCount != nil {
		s.workerCount = *u.WorkerCount
	}

	s.lastAdjustReason = "operator parameter update"
	s.rotateSeedLocked()

	return Outcome{
		Snapshot:      s.snapshotLocked(),
		OldSeed:       oldSeed,
		DifficultyAt:  difficultyAt,
		NewDifficulty: s.difficulty,
		AdjustReason:  s.lastAdjustReason,
	}, nil
}

// ForceReset rotates the seed without changing any parameter, for the
// admin plane's "force reset" action.
func (s *State) ForceReset() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldSeed := s.seed
	difficultyAt := s.difficulty
	s.lastAdjustReason = "operator forced reset"
	s.rotateSeedLocked()

	return Outcome{
		Snapshot:      s.snapshotLocked(),
		OldSeed:       oldSeed,
		DifficultyAt:  difficultyAt,
		NewDifficulty: s.difficulty,
		AdjustReason:  s.lastAdjustReason,
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
