package puzzle

import "math"

// adjustDifficultyLocked implements spec.md §4.3's difficulty algorithm:
// Tmin ≤ T ≤ Tmax is a no-op; otherwise step = clamp(floor(log2(mid/T)),
// -4, +4), applied as D ← clamp(D+step, Dmin, Dmax). Exact mid contributes
// zero step. Must be called with s.mu held.
func (s *State) adjustDifficultyLocked(solveSeconds float64) (int, string) {
	tMin := s.targetMin.Seconds()
	tMax := s.targetMax.Seconds()

	if solveSeconds >= tMin && solveSeconds <= tMax {
		s.lastAdjustReason = "within target window, no change"
		s.difficulty = clamp(s.difficulty, s.dMin, s.dMax)
		return s.difficulty, s.lastAdjustReason
	}

	step := computeStep(solveSeconds, tMin, tMax)
	s.difficulty = clamp(s.difficulty+step, s.dMin, s.dMax)

	reason := describeAdjustment(solveSeconds, tMin, tMax, step)
	s.lastAdjustReason = reason
	return s.difficulty, reason
}

// computeStep returns the signed difficulty step for a measured solve time
// against the [tMin, tMax] target window, using mid = (tMin+tMax)/2.
func computeStep(solveSeconds, tMin, tMax float64) int {
	mid := (tMin + tMax) / 2
	if solveSeconds <= 0 {
		return 4
	}
	raw := math.Floor(math.Log2(mid / solveSeconds))
	return clampFloat(raw, -4, 4)
}

func clampFloat(v, lo, hi float64) int {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return int(v)
}

func describeAdjustment(solveSeconds, tMin, tMax float64, step int) string {
	switch {
	case solveSeconds < tMin && step > 0:
		return "solved faster than target window, increasing difficulty"
	case solveSeconds > tMax && step < 0:
		return "solved slower than target window, decreasing difficulty"
	default:
		return "boundary solve time, difficulty unchanged by clamping"
	}
}

// Timeout implements spec.md §4.3's timeout rule as a single atomic step:
// D ← clamp(D − max(2, ceil(|step|)), Dmin, Dmax), seed rotation, and
// mining-clock reset, all under the puzzle lock. The caller (the timeout
// watcher) is responsible for selecting any consolation-code recipient and
// broadcasting PUZZLE_RESET with is_timeout=true.
func (s *State) Timeout() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	age := s.miningElapsedLocked().Seconds()
	tMin := s.targetMin.Seconds()
	tMax := s.targetMax.Seconds()

	step := computeStep(age, tMin, tMax)
	decrease := step
	if decrease < 0 {
		decrease = -decrease
	}
	if decrease < 2 {
		decrease = 2
	}

	oldSeed := s.seed
	difficultyAt := s.difficulty
	s.difficulty = clamp(s.difficulty-decrease, s.dMin, s.dMax)
	reason := "puzzle lifetime exceeded with no winner, difficulty decreased"
	s.lastAdjustReason = reason

	s.rotateSeedLocked()

	return Outcome{
		Snapshot:      s.snapshotLocked(),
		OldSeed:       oldSeed,
		DifficultyAt:  difficultyAt,
		SolveSeconds:  age,
		NewDifficulty: s.difficulty,
		AdjustReason:  reason,
	}
}
