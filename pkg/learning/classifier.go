package learning

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/mailguard/mailguard/pkg/config"
	"github.com/mailguard/mailguard/pkg/features"
	"github.com/mailguard/mailguard/pkg/feedback"
)

// ErrInsufficientDiversity indicates retraining was attempted with
// feedback of only one class. The prior model is retained unchanged.
var ErrInsufficientDiversity = errors.New("feedback contains only one decision class")

// ErrModelUnavailable indicates the learned score was requested before
// enough feedback accumulated. Callers treat the learned component as
// absent, not as a failure.
var ErrModelUnavailable = errors.New("adaptive model not yet available")

// ErrNoFeedback indicates retraining was attempted with no entries
var ErrNoFeedback = errors.New("no feedback entries to train on")

// ErrDimensionMismatch indicates a feature vector of the wrong length
var ErrDimensionMismatch = errors.New("feature vector dimension mismatch")

// Classifier is an online logistic regression model trained from
// analyst decisions. Retraining warm-starts from the current
// parameters so cost stays bounded as feedback grows; class weighting
// keeps the usually-rare Escalated class from being drowned out.
type Classifier struct {
	mu sync.RWMutex

	cfg       config.LearningConfig
	weights   []float64
	bias      float64
	trainedOn int
	trained   bool
}

// NewClassifier creates an untrained classifier
func NewClassifier(cfg config.LearningConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Load restores classifier parameters from a persisted state
func (c *Classifier) Load(state *ModelState) {
	if state == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.weights = make([]float64, len(state.Weights))
	copy(c.weights, state.Weights)
	c.bias = state.Bias
	c.trainedOn = state.TrainedOn
	c.trained = len(state.Weights) > 0
}

// State snapshots the current parameters for persistence under the
// given scope. Returns nil for an untrained classifier.
func (c *Classifier) State(scope string) *ModelState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.trained {
		return nil
	}

	weights := make([]float64, len(c.weights))
	copy(weights, c.weights)

	return &ModelState{
		Scope:     scope,
		Weights:   weights,
		Bias:      c.bias,
		TrainedOn: c.trainedOn,
		UpdatedAt: time.Now().UTC(),
	}
}

// TrainedOn returns the feedback count the model was last trained on
func (c *Classifier) TrainedOn() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trainedOn
}

// Available reports whether the learned score can be served: the model
// has been trained on at least the configured minimum feedback count
func (c *Classifier) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trained && c.trainedOn >= c.cfg.MinFeedback
}

// Retrain fits the classifier on the given feedback entries and
// returns the resulting state. A first train runs the full epoch
// budget from zero parameters; later trains warm-start from the
// current parameters with the smaller warm epoch budget. On error the
// prior parameters are retained unchanged.
func (c *Classifier) Retrain(entries []feedback.Entry, scope string) (*ModelState, error) {
	if len(entries) == 0 {
		return nil, ErrNoFeedback
	}

	escalated, cleared := 0, 0
	for _, entry := range entries {
		if entry.Decision == feedback.Escalated {
			escalated++
		} else {
			cleared++
		}
	}
	if escalated == 0 || cleared == 0 {
		return nil, ErrInsufficientDiversity
	}

	dim := len(entries[0].Features)
	for _, entry := range entries {
		if len(entry.Features) != dim {
			return nil, ErrDimensionMismatch
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	weights := make([]float64, dim)
	epochs := c.cfg.Epochs
	bias := 0.0

	if c.trained && len(c.weights) == dim {
		// Warm start from the current parameters
		copy(weights, c.weights)
		bias = c.bias
		epochs = c.cfg.WarmEpochs
	}

	// Balance the classes: each class contributes equally to the
	// gradient regardless of its share of the feedback
	total := float64(len(entries))
	escalatedWeight := total / (2 * float64(escalated))
	clearedWeight := total / (2 * float64(cleared))

	for epoch := 0; epoch < epochs; epoch++ {
		rate := c.cfg.LearningRate / (1 + float64(epoch))
		for _, entry := range entries {
			p := sigmoid(dot(weights, entry.Features) + bias)
			grad := p - entry.Label()
			if entry.Decision == feedback.Escalated {
				grad *= escalatedWeight
			} else {
				grad *= clearedWeight
			}
			for i, x := range entry.Features {
				weights[i] -= rate * grad * x
			}
			bias -= rate * grad
		}
	}

	c.weights = weights
	c.bias = bias
	c.trainedOn = len(entries)
	c.trained = true

	state := &ModelState{
		Scope:     scope,
		Weights:   append([]float64(nil), weights...),
		Bias:      bias,
		TrainedOn: len(entries),
		UpdatedAt: time.Now().UTC(),
	}
	return state, nil
}

// Predict returns the probability that the record warrants escalation.
// Returns ErrModelUnavailable until the model has matured.
func (c *Classifier) Predict(v features.Vector) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.trained || c.trainedOn < c.cfg.MinFeedback {
		return 0, ErrModelUnavailable
	}

	if len(v) != len(c.weights) {
		return 0, ErrDimensionMismatch
	}

	return sigmoid(dot(c.weights, v) + c.bias), nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func dot(w []float64, x []float64) float64 {
	sum := 0.0
	for i := range w {
		sum += w[i] * x[i]
	}
	return sum
}
