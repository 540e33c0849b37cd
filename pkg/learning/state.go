package learning

import (
	"encoding/json"
	"fmt"
	"time"
)

// ModelState is the serialized form of the adaptive classifier for one
// learning scope: the linear model parameters plus the number of
// feedback entries it was last trained on. States are replaced
// atomically by retraining and never mutated in place.
type ModelState struct {
	Scope     string    `json:"scope"`
	Weights   []float64 `json:"weights"`
	Bias      float64   `json:"bias"`
	TrainedOn int       `json:"trained_on"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Encode serializes the state to JSON
func (s *ModelState) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode model state: %v", err)
	}
	return data, nil
}

// DecodeState deserializes a model state from JSON
func DecodeState(data []byte) (*ModelState, error) {
	var state ModelState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode model state: %v", err)
	}
	return &state, nil
}

// Clone returns a deep copy of the state
func (s *ModelState) Clone() *ModelState {
	weights := make([]float64, len(s.Weights))
	copy(weights, s.Weights)
	return &ModelState{
		Scope:     s.Scope,
		Weights:   weights,
		Bias:      s.Bias,
		TrainedOn: s.TrainedOn,
		UpdatedAt: s.UpdatedAt,
	}
}
