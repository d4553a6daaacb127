package puzzle

import "testing"

func intPtr(v int) *int       { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestSetParams_RejectsInvertedDifficultyBounds(t *testing.T) {
	s := newTestState(t, 10)
	_, err := s.SetParams(ParamUpdate{DifficultyMin: intPtr(20), DifficultyMax: intPtr(10)})
	if err != ErrInvalidParams {
		t.Fatalf("expected ErrInvalidParams for Dmin > Dmax, got %v", err)
	}
}

func TestSetParams_RejectsInvertedTargetWindow(t *testing.T) {
	s := newTestState(t, 10)
	_, err := s.SetParams(ParamUpdate{TargetWindowMin: floatPtr(120), TargetWindowMax: floatPtr(30)})
	if err != ErrInvalidParams {
		t.Fatalf("expected ErrInvalidParams for Tmin >= Tmax, got %v", err)
	}
}

func TestSetParams_AppliesChangeAndRotatesSeed(t *testing.T) {
	s := newTestState(t, 10)
	oldSeed := s.CurrentSeed()

	out, err := s.SetParams(ParamUpdate{Difficulty: intPtr(25)})
	if err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	if out.NewDifficulty != 25 {
		t.Fatalf("expected new difficulty 25, got %d", out.NewDifficulty)
	}
	if s.CurrentSeed() == oldSeed {
		t.Fatalf("expected SetParams to rotate the seed")
	}
}

func TestSetParams_ClampsDifficultyToNewBounds(t *testing.T) {
	s := newTestState(t, 50)
	out, err := s.SetParams(ParamUpdate{DifficultyMax: intPtr(30)})
	if err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	if out.NewDifficulty != 30 {
		t.Fatalf("expected difficulty to clamp down to the new max 30, got %d", out.NewDifficulty)
	}
}

func TestForceReset_RotatesSeedWithoutChangingDifficulty(t *testing.T) {
	s := newTestState(t, 15)
	oldSeed := s.CurrentSeed()

	out := s.ForceReset()
	if out.NewDifficulty != 15 {
		t.Fatalf("expected ForceReset to leave difficulty unchanged, got %d", out.NewDifficulty)
	}
	if s.CurrentSeed() == oldSeed {
		t.Fatalf("expected ForceReset to rotate the seed")
	}
}
