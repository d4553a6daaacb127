package puzzle

import (
	"testing"
	"time"
)

func TestComputeStep_WithinWindowIsZero(t *testing.T) {
	if step := computeStep(75, 30, 120); step != 0 {
		t.Fatalf("expected zero step at the window midpoint, got %d", step)
	}
}

func TestComputeStep_ClampsToPlusFour(t *testing.T) {
	// Solved almost instantly: log2(mid/T) blows way past 4.
	if step := computeStep(0.001, 30, 120); step != 4 {
		t.Fatalf("expected step clamped to +4, got %d", step)
	}
}

func TestComputeStep_ClampsToMinusFour(t *testing.T) {
	// Solved extremely slowly: log2(mid/T) goes deeply negative.
	if step := computeStep(100000, 30, 120); step != -4 {
		t.Fatalf("expected step clamped to -4, got %d", step)
	}
}

func TestComputeStep_ZeroSolveSecondsTreatedAsInstant(t *testing.T) {
	if step := computeStep(0, 30, 120); step != 4 {
		t.Fatalf("expected a non-positive solve time to clamp to +4, got %d", step)
	}
}

func TestAdjustDifficultyLocked_NoChangeAtWindowBoundaries(t *testing.T) {
	s := &State{difficulty: 16, dMin: 8, dMax: 32, targetMin: 30 * time.Second, targetMax: 120 * time.Second}

	if d, _ := s.adjustDifficultyLocked(30); d != 16 {
		t.Fatalf("expected no change exactly at Tmin, got difficulty %d", d)
	}
	if d, _ := s.adjustDifficultyLocked(120); d != 16 {
		t.Fatalf("expected no change exactly at Tmax, got difficulty %d", d)
	}
}

func TestAdjustDifficultyLocked_ClampsAtDifficultyCeiling(t *testing.T) {
	s := &State{difficulty: 30, dMin: 8, dMax: 32, targetMin: 30 * time.Second, targetMax: 120 * time.Second}

	d, _ := s.adjustDifficultyLocked(0.001)
	if d != 32 {
		t.Fatalf("expected difficulty clamped to Dmax=32, got %d", d)
	}
}

func TestAdjustDifficultyLocked_ClampsAtDifficultyFloor(t *testing.T) {
	s := &State{difficulty: 9, dMin: 8, dMax: 32, targetMin: 30 * time.Second, targetMax: 120 * time.Second}

	d, _ := s.adjustDifficultyLocked(100000)
	if d != 8 {
		t.Fatalf("expected difficulty clamped to Dmin=8, got %d", d)
	}
}

func TestTimeout_DecreasesDifficultyByAtLeastTwo(t *testing.T) {
	s := &State{difficulty: 20, dMin: 8, dMax: 32, targetMin: 30 * time.Second, targetMax: 120 * time.Second}
	s.miningAccum = 120 * time.Second // age == Tmax exactly; computeStep yields -1, floored to -2

	out := s.Timeout()
	if out.NewDifficulty != 18 {
		t.Fatalf("expected timeout to decrease difficulty by at least 2, got %d", out.NewDifficulty)
	}
	if out.OldSeed == s.seed {
		t.Fatalf("expected Timeout to rotate the seed")
	}
}
