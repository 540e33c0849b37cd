package learning

import (
	"testing"
	"time"
)

func TestStateEncodeDecode(t *testing.T) {
	state := &ModelState{
		Scope:     "s1",
		Weights:   []float64{0.5, -1.2, 0},
		Bias:      -0.3,
		TrainedOn: 20,
		UpdatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	payload, err := state.Encode()
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}

	decoded, err := DecodeState(payload)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	if decoded.Scope != "s1" || decoded.TrainedOn != 20 || decoded.Bias != -0.3 {
		t.Errorf("state did not survive roundtrip: %+v", decoded)
	}
	if len(decoded.Weights) != 3 || decoded.Weights[1] != -1.2 {
		t.Errorf("weights did not survive roundtrip: %v", decoded.Weights)
	}
	if !decoded.UpdatedAt.Equal(state.UpdatedAt) {
		t.Errorf("updated_at did not survive roundtrip: %v", decoded.UpdatedAt)
	}
}

func TestDecodeStateInvalid(t *testing.T) {
	if _, err := DecodeState([]byte("not json")); err == nil {
		t.Error("expected error for invalid payload")
	}
}

func TestStateClone(t *testing.T) {
	state := &ModelState{
		Scope:   "s1",
		Weights: []float64{1, 2, 3},
	}

	clone := state.Clone()
	clone.Weights[0] = 99

	if state.Weights[0] != 1 {
		t.Error("mutating the clone should not affect the original")
	}
}
