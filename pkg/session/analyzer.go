package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mailguard/mailguard/pkg/anomaly"
	"github.com/mailguard/mailguard/pkg/blend"
	"github.com/mailguard/mailguard/pkg/config"
	"github.com/mailguard/mailguard/pkg/features"
	"github.com/mailguard/mailguard/pkg/feedback"
	"github.com/mailguard/mailguard/pkg/history"
	"github.com/mailguard/mailguard/pkg/learning"
	"github.com/mailguard/mailguard/pkg/record"
)

// GlobalScope is the model scope used when learning is shared across
// sessions
const GlobalScope = "global"

// Analyzer orchestrates the scoring pipeline for analysis sessions:
// extract features, fit and apply the base anomaly model, apply the
// adaptive model when mature, and blend. It also records analyst
// decisions and triggers retraining when enough new feedback
// accumulates.
//
// Each session's pipeline is logically sequential. When learning scope
// is global, the shared classifier is retrained under a single-writer
// lock; concurrent readers see either the pre- or post-retrain
// parameters, never a partial update.
type Analyzer struct {
	cfg       *config.Config
	logger    *zap.Logger
	extractor *features.Extractor
	store     feedback.Store
	models    learning.Store
	blender   *blend.Blender
	tracker   *history.Tracker

	mu          sync.Mutex
	classifiers map[string]*learning.Classifier
	hydrated    bool
}

// Result is the outcome of analyzing one session
type Result struct {
	SessionID      string
	Scores         []blend.BlendedScore
	Explanations   []string
	DecisionCount  int
	AdaptiveActive bool
	Stats          Stats
}

// Stats summarizes an analysis run
type Stats struct {
	Analyzed  int
	Anomalies int
	Critical  int
	High      int
}

// DecisionResult reports the effect of recording one analyst decision
type DecisionResult struct {
	Count      int
	Retrained  bool
	RetrainErr error
}

// NewAnalyzer wires the scoring pipeline together
func NewAnalyzer(cfg *config.Config, logger *zap.Logger, store feedback.Store, models learning.Store) *Analyzer {
	return &Analyzer{
		cfg:         cfg,
		logger:      logger,
		extractor:   features.NewExtractor(cfg.Features),
		store:       store,
		models:      models,
		blender:     blend.NewBlender(cfg.Blend, cfg.Scoring.Thresholds),
		tracker:     history.NewTracker(),
		classifiers: make(map[string]*learning.Classifier),
	}
}

// Tracker exposes the sender history tracker
func (a *Analyzer) Tracker() *history.Tracker {
	return a.tracker
}

// Blender exposes the configured score blender
func (a *Analyzer) Blender() *blend.Blender {
	return a.blender
}

// Analyze runs the full scoring pipeline over a session's records and
// returns one blended score per record, in input order
func (a *Analyzer) Analyze(ctx context.Context, sessionID string, records []record.Record) (*Result, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}

	for i := range records {
		if err := records[i].Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}

	a.logger.Info("Starting session analysis",
		zap.String("session", sessionID),
		zap.Int("records", len(records)))

	if err := a.hydrateHistory(ctx); err != nil {
		return nil, err
	}

	// Fold cross-session sender history into the records before
	// extraction so prior escalations raise the historical-flag
	// feature
	for i := range records {
		a.tracker.Observe(records[i].Sender)
		if prior := a.tracker.PriorFlags(records[i].Sender); prior > records[i].PriorFlags {
			records[i].PriorFlags = prior
		}
	}

	vectors := a.extractParallel(records)

	scorer := anomaly.NewScorer(a.cfg.Scoring)
	if err := scorer.Fit(vectors); err != nil {
		if !errors.Is(err, anomaly.ErrInsufficientData) {
			return nil, fmt.Errorf("failed to fit anomaly model: %w", err)
		}
		a.logger.Info("Session below minimum size, serving neutral base scores",
			zap.String("session", sessionID),
			zap.Int("records", len(records)),
			zap.Int("min_records", a.cfg.Scoring.MinRecords))
	}

	baseScores := a.scoreParallel(scorer, vectors)

	scope := a.scopeFor(sessionID)
	count, err := a.store.Count(ctx, a.countScope(sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to count feedback: %w", err)
	}

	classifier, err := a.classifierFor(ctx, scope)
	if err != nil {
		return nil, err
	}

	result := &Result{
		SessionID:      sessionID,
		Scores:         make([]blend.BlendedScore, len(records)),
		Explanations:   make([]string, len(records)),
		DecisionCount:  count,
		AdaptiveActive: classifier.Available(),
	}

	for i := range records {
		learned := blend.Absent()
		if p, err := classifier.Predict(vectors[i]); err == nil {
			learned = blend.Present(p)
		}

		score := a.blender.Blend(records[i].RecordID, baseScores[i], learned, count)
		result.Scores[i] = score
		result.Explanations[i] = a.blender.Explain(score)

		result.Stats.Analyzed++
		if score.Final > 0.7 {
			result.Stats.Anomalies++
		}
		switch score.RiskLevel {
		case "Critical":
			result.Stats.Critical++
		case "High":
			result.Stats.High++
		}
	}

	a.logger.Info("Session analysis completed",
		zap.String("session", sessionID),
		zap.Int("analyzed", result.Stats.Analyzed),
		zap.Int("critical", result.Stats.Critical),
		zap.Int("high", result.Stats.High),
		zap.Bool("adaptive_active", result.AdaptiveActive))

	return result, nil
}

// BaseScore fits the base model over the session's records and returns
// the base score of the record at the target index. Used when a
// decision needs the base score at decision time without a full
// blended analysis.
func (a *Analyzer) BaseScore(sessionRecords []record.Record, target int) (float64, error) {
	if target < 0 || target >= len(sessionRecords) {
		return 0, fmt.Errorf("target index out of range")
	}

	vectors := a.extractParallel(sessionRecords)
	scorer := anomaly.NewScorer(a.cfg.Scoring)
	if err := scorer.Fit(vectors); err != nil && !errors.Is(err, anomaly.ErrInsufficientData) {
		return 0, fmt.Errorf("failed to fit anomaly model: %w", err)
	}

	return scorer.Score(vectors[target]), nil
}

// RecordDecision persists one analyst decision and synchronously
// retrains the adaptive model when the feedback count crosses the
// configured retrain interval. Retrains rejected for insufficient
// class diversity leave the prior model in place and are reported via
// DecisionResult.RetrainErr while the pipeline continues.
func (a *Analyzer) RecordDecision(ctx context.Context, sessionID string, rec record.Record, decision feedback.Decision, baseScore float64) (*DecisionResult, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	// Hydrate before marking so the new decision is not applied twice
	// when this process later reloads durable feedback
	if err := a.hydrateHistory(ctx); err != nil {
		return nil, err
	}

	entry := feedback.Entry{
		SessionID: sessionID,
		RecordID:  rec.RecordID,
		Sender:    rec.Sender,
		Decision:  decision,
		BaseScore: baseScore,
		Features:  a.extractor.Extract(rec),
	}

	if err := a.store.RecordDecision(ctx, entry); err != nil {
		return nil, err
	}

	if decision == feedback.Escalated {
		a.tracker.MarkFlagged(rec.Sender)
	}

	count, err := a.store.Count(ctx, a.countScope(sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to count feedback: %w", err)
	}

	result := &DecisionResult{Count: count}

	if count < a.cfg.Learning.MinFeedback || count%a.cfg.Learning.RetrainEvery != 0 {
		return result, nil
	}

	retrained, retrainErr := a.retrain(ctx, sessionID)
	result.Retrained = retrained
	result.RetrainErr = retrainErr
	if retrainErr != nil && !errors.Is(retrainErr, learning.ErrInsufficientDiversity) {
		return nil, retrainErr
	}

	return result, nil
}

// Snapshot summarizes the current learning state for dashboards
type Snapshot struct {
	Decisions      int
	Escalated      int
	Cleared        int
	EscalationRate float64
	BlendWeight    float64
	Maturity       string
	FlaggedSenders int
}

// Snapshot reports feedback totals, the current blend weight and the
// model maturity bucket
func (a *Analyzer) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := a.hydrateHistory(ctx); err != nil {
		return nil, err
	}

	entries, err := a.store.Entries(ctx, feedback.AllSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback: %w", err)
	}

	snap := &Snapshot{Decisions: len(entries)}
	for _, entry := range entries {
		if entry.Decision == feedback.Escalated {
			snap.Escalated++
		} else {
			snap.Cleared++
		}
	}

	if snap.Decisions > 0 {
		snap.EscalationRate = float64(snap.Escalated) / float64(snap.Decisions)
	}

	snap.BlendWeight = a.blender.Weight(snap.Decisions)
	snap.FlaggedSenders = a.tracker.FlaggedSenders()

	switch {
	case snap.Decisions < 20:
		snap.Maturity = "Initial"
	case snap.Decisions < 100:
		snap.Maturity = "Learning"
	default:
		snap.Maturity = "Trained"
	}

	return snap, nil
}

// hydrateHistory rebuilds the sender tracker from durable feedback so
// prior escalations keep raising the historical-flag feature across
// process restarts. Runs once per analyzer.
func (a *Analyzer) hydrateHistory(ctx context.Context) error {
	a.mu.Lock()
	if a.hydrated {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	entries, err := a.store.Entries(ctx, feedback.AllSessions)
	if err != nil {
		return fmt.Errorf("failed to load feedback: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.hydrated {
		return nil
	}

	for _, entry := range entries {
		if entry.Sender == "" {
			continue
		}
		a.tracker.Observe(entry.Sender)
		if entry.Decision == feedback.Escalated {
			a.tracker.MarkFlagged(entry.Sender)
		}
	}

	a.hydrated = true
	return nil
}

// retrain rebuilds the scope's classifier from all of its feedback and
// persists the resulting state. Serialized so only one retrain mutates
// a shared model at a time.
func (a *Analyzer) retrain(ctx context.Context, sessionID string) (bool, error) {
	scope := a.scopeFor(sessionID)

	entries, err := a.store.Entries(ctx, a.countScope(sessionID))
	if err != nil {
		return false, fmt.Errorf("failed to load feedback: %w", err)
	}

	classifier, err := a.classifierFor(ctx, scope)
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	state, err := classifier.Retrain(entries, scope)
	if err != nil {
		if errors.Is(err, learning.ErrInsufficientDiversity) {
			a.logger.Warn("Retrain skipped: feedback has only one decision class",
				zap.String("scope", scope),
				zap.Int("entries", len(entries)))
			return false, err
		}
		return false, fmt.Errorf("retrain failed: %w", err)
	}

	if err := a.models.Save(ctx, state); err != nil {
		return false, fmt.Errorf("failed to persist model state: %w", err)
	}

	a.logger.Info("Adaptive model retrained",
		zap.String("scope", scope),
		zap.Int("trained_on", state.TrainedOn))

	return true, nil
}

// classifierFor returns the classifier for a scope, creating it and
// loading any persisted state on first use
func (a *Analyzer) classifierFor(ctx context.Context, scope string) (*learning.Classifier, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if classifier, ok := a.classifiers[scope]; ok {
		return classifier, nil
	}

	classifier := learning.NewClassifier(a.cfg.Learning)

	state, err := a.models.Load(ctx, scope)
	if err != nil && !errors.Is(err, learning.ErrNoState) {
		return nil, fmt.Errorf("failed to load model state: %w", err)
	}
	if state != nil {
		classifier.Load(state)
		a.logger.Info("Loaded persisted adaptive model",
			zap.String("scope", scope),
			zap.Int("trained_on", state.TrainedOn))
	}

	a.classifiers[scope] = classifier
	return classifier, nil
}

// scopeFor maps a session to its model scope
func (a *Analyzer) scopeFor(sessionID string) string {
	if a.cfg.Learning.Scope == "global" {
		return GlobalScope
	}
	return sessionID
}

// countScope maps a session to the feedback scope its decision count
// is measured over
func (a *Analyzer) countScope(sessionID string) string {
	if a.cfg.Learning.Scope == "global" {
		return feedback.AllSessions
	}
	return sessionID
}

// extractParallel extracts feature vectors with a bounded worker pool
func (a *Analyzer) extractParallel(records []record.Record) []features.Vector {
	vectors := make([]features.Vector, len(records))
	a.forEachParallel(len(records), func(i int) {
		vectors[i] = a.extractor.Extract(records[i])
	})
	return vectors
}

// scoreParallel computes base scores with a bounded worker pool
func (a *Analyzer) scoreParallel(scorer *anomaly.Scorer, vectors []features.Vector) []float64 {
	scores := make([]float64, len(vectors))
	a.forEachParallel(len(vectors), func(i int) {
		scores[i] = scorer.Score(vectors[i])
	})
	return scores
}

func (a *Analyzer) forEachParallel(n int, fn func(i int)) {
	workers := a.cfg.Performance.MaxConcurrentRecords
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	jobs := make(chan int, n)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}
