package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mailguard/mailguard/pkg/config"
	"github.com/mailguard/mailguard/pkg/feedback"
	"github.com/mailguard/mailguard/pkg/learning"
	"github.com/mailguard/mailguard/pkg/logging"
	"github.com/mailguard/mailguard/pkg/record"
	"github.com/mailguard/mailguard/pkg/session"
)

var (
	decideInput    string
	decideConfig   string
	decideSession  string
	decideRecord   string
	decideDecision string
)

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Record an analyst decision on a scored record",
	Long: `Record an escalate or clear decision for one record of a session.

Decisions feed the adaptive model: after every retrain interval the
model is rebuilt from the accumulated feedback, shifting score weight
from the anomaly model toward learned analyst judgment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if decideInput == "" || decideSession == "" || decideRecord == "" || decideDecision == "" {
			return fmt.Errorf("input, session, record and decision are required")
		}

		decision, err := feedback.ParseDecision(decideDecision)
		if err != nil {
			return fmt.Errorf("invalid decision %q: must be Escalated or Cleared", decideDecision)
		}

		cfg, err := config.LoadConfig(decideConfig)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}

		logger, err := logging.NewLogger(cfg.Logging)
		if err != nil {
			return err
		}
		defer logger.Sync()

		records, err := record.LoadCSV(decideInput)
		if err != nil {
			return fmt.Errorf("failed to load records: %v", err)
		}

		target := -1
		for i := range records {
			if records[i].RecordID == decideRecord {
				target = i
				break
			}
		}
		if target < 0 {
			return fmt.Errorf("record %s not found in %s", decideRecord, decideInput)
		}

		fbStore, modelStore, err := openStores(cfg, logger)
		if err != nil {
			return err
		}
		defer fbStore.Close()
		defer modelStore.Close()

		analyzer := session.NewAnalyzer(cfg, logger, fbStore, modelStore)

		baseScore, err := analyzer.BaseScore(records, target)
		if err != nil {
			return err
		}

		result, err := analyzer.RecordDecision(context.Background(),
			decideSession, records[target], decision, baseScore)
		if err != nil {
			return err
		}

		fmt.Printf("✅ Recorded %s for record %s (base score %.3f)\n",
			decision, decideRecord, baseScore)
		fmt.Printf("📊 Decisions in scope: %d\n", result.Count)

		switch {
		case result.Retrained:
			fmt.Printf("🧠 Adaptive model retrained\n")
		case errors.Is(result.RetrainErr, learning.ErrInsufficientDiversity):
			fmt.Printf("⚠️  Retrain skipped: feedback contains only one decision class\n")
		}

		return nil
	},
}

func init() {
	decideCmd.Flags().StringVarP(&decideInput, "input", "i", "", "CSV export the record belongs to (required)")
	decideCmd.Flags().StringVarP(&decideConfig, "config", "c", "", "Configuration file path")
	decideCmd.Flags().StringVarP(&decideSession, "session", "s", "", "Session id (required)")
	decideCmd.Flags().StringVarP(&decideRecord, "record", "r", "", "Record id (required)")
	decideCmd.Flags().StringVarP(&decideDecision, "decision", "d", "", "Escalated or Cleared (required)")
}
