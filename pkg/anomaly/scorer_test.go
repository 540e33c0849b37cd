package anomaly

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/mailguard/mailguard/pkg/config"
	"github.com/mailguard/mailguard/pkg/features"
)

func testScoringConfig() config.ScoringConfig {
	return config.DefaultConfig().Scoring
}

// clusteredVectors builds a tight cluster of n similar vectors plus one
// obvious outlier at the end
func clusteredVectors(n, dim int) []features.Vector {
	rng := rand.New(rand.NewSource(7))

	vectors := make([]features.Vector, 0, n+1)
	for i := 0; i < n; i++ {
		v := make(features.Vector, dim)
		for j := range v {
			v[j] = 0.5 + rng.Float64()*0.05
		}
		vectors = append(vectors, v)
	}

	outlier := make(features.Vector, dim)
	for j := range outlier {
		outlier[j] = 10.0
	}
	return append(vectors, outlier)
}

func TestFitBelowMinimum(t *testing.T) {
	s := NewScorer(testScoringConfig())

	vectors := clusteredVectors(5, 8)[:5]
	err := s.Fit(vectors)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}

	if s.Fitted() {
		t.Error("scorer should not be fitted after a rejected fit")
	}

	// Every record gets the neutral score until a real fit succeeds
	for i, v := range vectors {
		if got := s.Score(v); got != 0.5 {
			t.Errorf("vector %d: expected neutral score 0.5, got %f", i, got)
		}
	}
}

func TestFitAndScoreOutlier(t *testing.T) {
	s := NewScorer(testScoringConfig())

	vectors := clusteredVectors(30, 8)
	if err := s.Fit(vectors); err != nil {
		t.Fatalf("unexpected fit error: %v", err)
	}

	if !s.Fitted() {
		t.Fatal("scorer should report fitted")
	}

	scores := s.ScoreAll(vectors)
	outlierScore := scores[len(scores)-1]

	mean := 0.0
	for _, score := range scores[:len(scores)-1] {
		mean += score
	}
	mean /= float64(len(scores) - 1)

	if outlierScore <= mean {
		t.Errorf("outlier score %f should exceed inlier mean %f", outlierScore, mean)
	}

	for i, score := range scores {
		if score < 0 || score > 1 {
			t.Errorf("score %d out of [0,1]: %f", i, score)
		}
	}
}

func TestRefitIdempotent(t *testing.T) {
	vectors := clusteredVectors(25, 6)

	first := NewScorer(testScoringConfig())
	if err := first.Fit(vectors); err != nil {
		t.Fatalf("unexpected fit error: %v", err)
	}
	firstScores := first.ScoreAll(vectors)

	second := NewScorer(testScoringConfig())
	if err := second.Fit(vectors); err != nil {
		t.Fatalf("unexpected fit error: %v", err)
	}
	secondScores := second.ScoreAll(vectors)

	for i := range firstScores {
		if firstScores[i] != secondScores[i] {
			t.Errorf("score %d differs between identical fits: %f vs %f",
				i, firstScores[i], secondScores[i])
		}
	}
}

func TestRefitReplacesState(t *testing.T) {
	s := NewScorer(testScoringConfig())

	if err := s.Fit(clusteredVectors(20, 6)); err != nil {
		t.Fatalf("unexpected fit error: %v", err)
	}

	// Refit below the minimum clears the fitted state
	if err := s.Fit(clusteredVectors(3, 6)[:3]); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData on undersized refit, got %v", err)
	}

	if s.Fitted() {
		t.Error("undersized refit should clear fitted state")
	}
}

func TestFitSinglePointSession(t *testing.T) {
	// A caller wiring the scorer directly can set the minimum below the
	// validated floor; a single-point forest must not emit NaN scores
	cfg := testScoringConfig()
	cfg.MinRecords = 1

	s := NewScorer(cfg)
	if err := s.Fit([]features.Vector{{1, 2, 3}}); err != nil {
		t.Fatalf("unexpected fit error: %v", err)
	}

	got := s.Score(features.Vector{1, 2, 3})
	if math.IsNaN(got) {
		t.Fatal("single-point session produced NaN score")
	}
	if got != 0 {
		t.Errorf("single-point session score = %f, want 0", got)
	}
}

func TestScoreConstantSession(t *testing.T) {
	s := NewScorer(testScoringConfig())

	// Identical vectors leave no raw score spread to normalize over
	vectors := make([]features.Vector, 15)
	for i := range vectors {
		vectors[i] = features.Vector{1, 2, 3, 4}
	}

	if err := s.Fit(vectors); err != nil {
		t.Fatalf("unexpected fit error: %v", err)
	}

	if got := s.Score(vectors[0]); got != 0 {
		t.Errorf("constant session should score 0, got %f", got)
	}
}
