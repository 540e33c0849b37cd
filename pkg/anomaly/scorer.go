package anomaly

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/mailguard/mailguard/pkg/config"
	"github.com/mailguard/mailguard/pkg/features"
)

// ErrInsufficientData indicates a session too small for stable density
// estimation. Callers fall back to the neutral score rather than
// failing the pipeline.
var ErrInsufficientData = errors.New("too few records for anomaly detection")

// Scorer assigns each record of a session an anomaly score in [0,1],
// independent of any analyst feedback. One scorer serves one session;
// Fit may be called again when the session's record set changes.
type Scorer struct {
	mu sync.RWMutex

	cfg    config.ScoringConfig
	forest *isolationForest

	// Min-max bounds of raw scores over the fitted session, used to
	// normalize per-record scores to [0,1]
	rawMin float64
	rawMax float64
	fitted bool
}

// NewScorer creates an anomaly scorer with the given tuning
func NewScorer(cfg config.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Fit trains the isolation forest over all feature vectors of a
// session. Refitting replaces any prior state. Returns
// ErrInsufficientData when the session is below the configured
// minimum; the scorer then serves the neutral score.
func (s *Scorer) Fit(vectors []features.Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(vectors) < s.cfg.MinRecords {
		s.forest = nil
		s.fitted = false
		return ErrInsufficientData
	}

	rng := rand.New(rand.NewSource(s.cfg.RandomSeed))
	forest := buildForest(vectors, s.cfg.Trees, s.cfg.SampleSize, rng)

	// Record the raw score range of the training session so every
	// per-record score lands on the same [0,1] scale
	rawMin, rawMax := forest.Score(vectors[0]), forest.Score(vectors[0])
	for _, v := range vectors[1:] {
		raw := forest.Score(v)
		if raw < rawMin {
			rawMin = raw
		}
		if raw > rawMax {
			rawMax = raw
		}
	}

	s.forest = forest
	s.rawMin = rawMin
	s.rawMax = rawMax
	s.fitted = true
	return nil
}

// Fitted reports whether the scorer currently holds a trained forest
func (s *Scorer) Fitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fitted
}

// Score returns the normalized anomaly score of one record's feature
// vector. Unfitted scorers return the neutral default; a session with
// no score variation gets zero for every record.
func (s *Scorer) Score(v features.Vector) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.fitted {
		return s.cfg.NeutralScore
	}

	if s.rawMax <= s.rawMin {
		return 0
	}

	score := (s.forest.Score(v) - s.rawMin) / (s.rawMax - s.rawMin)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// ScoreAll scores a batch of vectors, preserving order
func (s *Scorer) ScoreAll(vectors []features.Vector) []float64 {
	scores := make([]float64, len(vectors))
	for i, v := range vectors {
		scores[i] = s.Score(v)
	}
	return scores
}
