package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mailguard/mailguard/pkg/config"
	"github.com/mailguard/mailguard/pkg/feedback"
	"github.com/mailguard/mailguard/pkg/learning"
	"github.com/mailguard/mailguard/pkg/record"
)

func testAnalyzer(cfg *config.Config) *Analyzer {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cfg.Learning.Backend = "memory"
	return NewAnalyzer(cfg, zap.NewNop(), feedback.NewMemoryStore(), learning.NewMemoryStore())
}

// sessionRecords builds n mostly-routine records with one obviously
// risky record at the end
func sessionRecords(n int) []record.Record {
	records := make([]record.Record, 0, n)
	for i := 0; i < n-1; i++ {
		records = append(records, record.Record{
			RecordID:    fmt.Sprintf("REC-%03d", i),
			Sender:      fmt.Sprintf("user%d@company.com", i%4),
			Recipients:  "partner@vendor.com",
			Subject:     "Weekly report",
			Attachments: "report.pdf",
			Department:  "Operations",
			Time:        time.Date(2025, 6, 2, 10+i%6, 0, 0, 0, time.UTC),
		})
	}
	records = append(records, record.Record{
		RecordID:    fmt.Sprintf("REC-%03d", n-1),
		Sender:      "eve@company.com",
		Recipients:  "drop@gmail.com",
		Subject:     "URGENT confidential payroll transfer",
		Attachments: "payroll_export.exe, backup.zip, customer_db.zip",
		Department:  "Finance",
		Leaver:      true,
		PriorFlags:  3,
		Time:        time.Date(2025, 6, 2, 2, 30, 0, 0, time.UTC),
	})
	return records
}

func TestAnalyzeRequiresSessionID(t *testing.T) {
	a := testAnalyzer(nil)

	if _, err := a.Analyze(context.Background(), "", sessionRecords(5)); err == nil {
		t.Error("expected error for empty session id")
	}
}

func TestAnalyzeRejectsInvalidRecord(t *testing.T) {
	a := testAnalyzer(nil)

	records := []record.Record{{RecordID: "REC-001"}} // no sender
	if _, err := a.Analyze(context.Background(), "s1", records); err == nil {
		t.Error("expected error for invalid record")
	}
}

func TestAnalyzeSmallSessionNeutral(t *testing.T) {
	a := testAnalyzer(nil)

	// Below the anomaly minimum every record gets the neutral base
	// score, and with no learned model the final equals the base
	result, err := a.Analyze(context.Background(), "s1", sessionRecords(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Scores) != 4 {
		t.Fatalf("expected 4 scores, got %d", len(result.Scores))
	}
	for i, score := range result.Scores {
		if score.Base != 0.5 {
			t.Errorf("score %d: base = %f, want neutral 0.5", i, score.Base)
		}
		if score.Final != score.Base {
			t.Errorf("score %d: final %f should equal base %f without a learned model",
				i, score.Final, score.Base)
		}
	}
	if result.AdaptiveActive {
		t.Error("adaptive model should not be active without feedback")
	}
}

func TestAnalyzeFullSession(t *testing.T) {
	a := testAnalyzer(nil)

	records := sessionRecords(30)
	result, err := a.Analyze(context.Background(), "s1", records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Stats.Analyzed != 30 {
		t.Errorf("analyzed = %d, want 30", result.Stats.Analyzed)
	}
	if len(result.Explanations) != 30 {
		t.Errorf("expected 30 explanations, got %d", len(result.Explanations))
	}

	for i, score := range result.Scores {
		if score.Final < 0 || score.Final > 1 {
			t.Errorf("score %d out of range: %f", i, score.Final)
		}
		if score.RecordID != records[i].RecordID {
			t.Errorf("score %d keyed to %s, want %s", i, score.RecordID, records[i].RecordID)
		}
	}

	// The planted outlier should rank above the routine records
	outlier := result.Scores[len(result.Scores)-1]
	routine := result.Scores[0]
	if outlier.Final <= routine.Final {
		t.Errorf("outlier %f should outscore routine record %f", outlier.Final, routine.Final)
	}
}

func TestRecordDecisionRetrainCycle(t *testing.T) {
	a := testAnalyzer(nil)
	ctx := context.Background()

	records := sessionRecords(12)

	// The first nine decisions accumulate without retraining
	for i := 0; i < 9; i++ {
		decision := feedback.Cleared
		if i%3 == 0 {
			decision = feedback.Escalated
		}
		result, err := a.RecordDecision(ctx, "s1", records[i], decision, 0.5)
		if err != nil {
			t.Fatalf("decision %d: unexpected error: %v", i, err)
		}
		if result.Retrained {
			t.Errorf("decision %d should not trigger retraining", i+1)
		}
		if result.Count != i+1 {
			t.Errorf("decision %d: count = %d, want %d", i, result.Count, i+1)
		}
	}

	// The tenth decision crosses the retrain interval
	result, err := a.RecordDecision(ctx, "s1", records[9], feedback.Escalated, 0.9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Retrained {
		t.Fatal("tenth decision should trigger retraining")
	}
	if result.RetrainErr != nil {
		t.Fatalf("unexpected retrain error: %v", result.RetrainErr)
	}

	// With a mature model the next analysis blends the learned score
	analysis, err := a.Analyze(ctx, "s1", records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !analysis.AdaptiveActive {
		t.Error("adaptive model should be active after retraining")
	}
	if analysis.DecisionCount != 10 {
		t.Errorf("decision count = %d, want 10", analysis.DecisionCount)
	}
	for i, score := range analysis.Scores {
		if !score.Learned.Valid {
			t.Errorf("score %d should carry a learned component", i)
		}
		if score.Weight != 0.15 {
			t.Errorf("score %d: weight = %f, want 0.15 at 10 decisions", i, score.Weight)
		}
	}
}

func TestRecordDecisionDiversitySkip(t *testing.T) {
	a := testAnalyzer(nil)
	ctx := context.Background()

	records := sessionRecords(12)

	// Ten decisions of the same class: the retrain runs but is skipped
	// for lacking diversity, and the pipeline keeps going
	var last *DecisionResult
	for i := 0; i < 10; i++ {
		result, err := a.RecordDecision(ctx, "s1", records[i], feedback.Escalated, 0.5)
		if err != nil {
			t.Fatalf("decision %d: unexpected error: %v", i, err)
		}
		last = result
	}

	if last.Retrained {
		t.Error("single-class feedback should not produce a model")
	}
	if !errors.Is(last.RetrainErr, learning.ErrInsufficientDiversity) {
		t.Errorf("expected ErrInsufficientDiversity, got %v", last.RetrainErr)
	}

	analysis, err := a.Analyze(ctx, "s1", records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if analysis.AdaptiveActive {
		t.Error("adaptive model should stay inactive after skipped retrain")
	}
}

func TestRecordDecisionUpsert(t *testing.T) {
	a := testAnalyzer(nil)
	ctx := context.Background()

	rec := sessionRecords(2)[0]

	if _, err := a.RecordDecision(ctx, "s1", rec, feedback.Escalated, 0.8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := a.RecordDecision(ctx, "s1", rec, feedback.Cleared, 0.8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Count != 1 {
		t.Errorf("re-deciding the same record should keep count at 1, got %d", result.Count)
	}
}

func TestGlobalScopeSharesFeedback(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Learning.Scope = "global"
	a := testAnalyzer(cfg)
	ctx := context.Background()

	records := sessionRecords(12)

	// Split ten decisions across two sessions; globally scoped learning
	// counts them together
	for i := 0; i < 5; i++ {
		decision := feedback.Cleared
		if i%2 == 0 {
			decision = feedback.Escalated
		}
		if _, err := a.RecordDecision(ctx, "s1", records[i], decision, 0.5); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	var last *DecisionResult
	for i := 5; i < 10; i++ {
		decision := feedback.Cleared
		if i%2 == 0 {
			decision = feedback.Escalated
		}
		result, err := a.RecordDecision(ctx, "s2", records[i], decision, 0.5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		last = result
	}

	if last.Count != 10 {
		t.Errorf("global count = %d, want 10", last.Count)
	}
	if !last.Retrained {
		t.Error("tenth global decision should trigger retraining")
	}

	// A session that never saw feedback still benefits from the shared
	// model
	analysis, err := a.Analyze(ctx, "s3", records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !analysis.AdaptiveActive {
		t.Error("shared model should be active for new sessions")
	}
}

func TestSnapshot(t *testing.T) {
	a := testAnalyzer(nil)
	ctx := context.Background()

	records := sessionRecords(8)
	for i := 0; i < 4; i++ {
		decision := feedback.Cleared
		if i < 1 {
			decision = feedback.Escalated
		}
		if _, err := a.RecordDecision(ctx, "s1", records[i], decision, 0.5); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	snap, err := a.Snapshot(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if snap.Decisions != 4 || snap.Escalated != 1 || snap.Cleared != 3 {
		t.Errorf("unexpected snapshot counts: %+v", snap)
	}
	if snap.EscalationRate != 0.25 {
		t.Errorf("escalation rate = %f, want 0.25", snap.EscalationRate)
	}
	if snap.Maturity != "Initial" {
		t.Errorf("maturity = %s, want Initial below 20 decisions", snap.Maturity)
	}
	if snap.FlaggedSenders != 1 {
		t.Errorf("flagged senders = %d, want 1", snap.FlaggedSenders)
	}
}

func TestBaseScoreBounds(t *testing.T) {
	a := testAnalyzer(nil)

	records := sessionRecords(15)

	score, err := a.BaseScore(records, len(records)-1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score < 0 || score > 1 {
		t.Errorf("base score out of range: %f", score)
	}

	if _, err := a.BaseScore(records, -1); err == nil {
		t.Error("expected error for negative index")
	}
	if _, err := a.BaseScore(records, len(records)); err == nil {
		t.Error("expected error for out of range index")
	}
}

func TestSenderHistorySurvivesRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "mailguard.db")
	cfg := config.DefaultConfig()
	cfg.Learning.Backend = "sqlite"
	cfg.Learning.SQLite.Path = dbPath
	ctx := context.Background()

	openAnalyzer := func() (*Analyzer, func()) {
		t.Helper()
		fbStore, err := feedback.NewSQLiteStore(dbPath, zap.NewNop())
		if err != nil {
			t.Fatalf("failed to open feedback store: %v", err)
		}
		modelStore, err := learning.NewSQLiteStore(dbPath)
		if err != nil {
			t.Fatalf("failed to open model store: %v", err)
		}
		analyzer := NewAnalyzer(cfg, zap.NewNop(), fbStore, modelStore)
		return analyzer, func() {
			fbStore.Close()
			modelStore.Close()
		}
	}

	rec := record.Record{
		RecordID: "REC-001",
		Sender:   "eve@company.com",
		Subject:  "customer export",
	}

	first, closeFirst := openAnalyzer()
	if _, err := first.RecordDecision(ctx, "s1", rec, feedback.Escalated, 0.7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	closeFirst()

	// A fresh analyzer over the same database stands in for the next
	// CLI invocation: the durable escalation must still raise the
	// sender's history
	second, closeSecond := openAnalyzer()
	defer closeSecond()

	snap, err := second.Snapshot(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.FlaggedSenders != 1 {
		t.Errorf("flagged senders = %d, want 1 after restart", snap.FlaggedSenders)
	}

	if got := second.Tracker().PriorFlags("eve@company.com"); got != 1 {
		t.Errorf("prior flags = %d, want 1 despite restart", got)
	}

	// Re-running snapshot in the same process must not double-count
	// the durable escalation
	snap, err = second.Snapshot(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.FlaggedSenders != 1 {
		t.Errorf("flagged senders = %d after repeat snapshot, want 1", snap.FlaggedSenders)
	}
	if got := second.Tracker().PriorFlags("eve@company.com"); got != 1 {
		t.Errorf("prior flags = %d after repeat snapshot, want 1", got)
	}
}

func TestSenderHistoryRaisesPriorFlags(t *testing.T) {
	a := testAnalyzer(nil)
	ctx := context.Background()

	rec := record.Record{
		RecordID: "REC-001",
		Sender:   "eve@company.com",
		Subject:  "export",
	}

	if _, err := a.RecordDecision(ctx, "s1", rec, feedback.Escalated, 0.7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := a.Tracker().PriorFlags("eve@company.com"); got != 1 {
		t.Errorf("prior flags = %d, want 1 after escalation", got)
	}
}
