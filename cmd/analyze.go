package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mailguard/mailguard/pkg/config"
	"github.com/mailguard/mailguard/pkg/logging"
	"github.com/mailguard/mailguard/pkg/record"
	"github.com/mailguard/mailguard/pkg/session"
)

var (
	analyzeInput   string
	analyzeConfig  string
	analyzeSession string
	analyzeOutput  string
	analyzeTop     int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Score an exported email log",
	Long: `Analyze a CSV export of email logs and assign each record a blended
risk score: the session's anomaly model combined with the adaptive
model learned from previous analyst decisions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if analyzeInput == "" {
			return fmt.Errorf("input file is required")
		}

		cfg, err := config.LoadConfig(analyzeConfig)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}

		logger, err := logging.NewLogger(cfg.Logging)
		if err != nil {
			return err
		}
		defer logger.Sync()

		records, err := record.LoadCSV(analyzeInput)
		if err != nil {
			return fmt.Errorf("failed to load records: %v", err)
		}

		if len(records) == 0 {
			return fmt.Errorf("no records found in %s", analyzeInput)
		}

		fbStore, modelStore, err := openStores(cfg, logger)
		if err != nil {
			return err
		}
		defer fbStore.Close()
		defer modelStore.Close()

		sessionID := analyzeSession
		if sessionID == "" {
			sessionID = uuid.New().String()
		}

		analyzer := session.NewAnalyzer(cfg, logger, fbStore, modelStore)

		start := time.Now()
		result, err := analyzer.Analyze(context.Background(), sessionID, records)
		if err != nil {
			return fmt.Errorf("analysis failed: %v", err)
		}
		duration := time.Since(start)

		fmt.Printf("🛡️  MailGuard Analysis Complete\n")
		fmt.Printf("════════════════════════════════════════\n")
		fmt.Printf("Session:  %s\n", sessionID)
		fmt.Printf("Records analyzed: %d\n", result.Stats.Analyzed)
		fmt.Printf("Anomalies (>0.7): %d\n", result.Stats.Anomalies)
		fmt.Printf("Critical cases:   %d\n", result.Stats.Critical)
		fmt.Printf("High risk cases:  %d\n", result.Stats.High)
		fmt.Printf("Decisions so far: %d\n", result.DecisionCount)
		if result.AdaptiveActive {
			fmt.Printf("Adaptive model:   active\n")
		} else {
			fmt.Printf("Adaptive model:   not yet mature (base scores only)\n")
		}
		fmt.Printf("Total time: %v\n\n", duration)

		printTopRisks(result, analyzeTop)

		if analyzeOutput != "" {
			if err := writeScoresCSV(analyzeOutput, result); err != nil {
				return fmt.Errorf("failed to write scores: %v", err)
			}
			fmt.Printf("\n📄 Scores written to %s\n", analyzeOutput)
		}

		return nil
	},
}

func printTopRisks(result *session.Result, top int) {
	type ranked struct {
		index int
		final float64
	}

	order := make([]ranked, len(result.Scores))
	for i, score := range result.Scores {
		order[i] = ranked{index: i, final: score.Final}
	}
	sort.Slice(order, func(i, j int) bool { return order[i].final > order[j].final })

	if top > len(order) {
		top = len(order)
	}

	fmt.Printf("🔥 Top %d risk records:\n", top)
	for rank := 0; rank < top; rank++ {
		score := result.Scores[order[rank].index]
		fmt.Printf("  %2d. %-20s final=%.3f base=%.3f weight=%.2f [%s]\n",
			rank+1, score.RecordID, score.Final, score.Base, score.Weight, score.RiskLevel)
		fmt.Printf("      %s\n", result.Explanations[order[rank].index])
	}
}

func writeScoresCSV(path string, result *session.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"record_id", "base_score", "learned_score", "weight", "final_score", "risk_level"}); err != nil {
		return err
	}

	for _, score := range result.Scores {
		learned := ""
		if score.Learned.Valid {
			learned = strconv.FormatFloat(score.Learned.Score, 'f', 4, 64)
		}
		row := []string{
			score.RecordID,
			strconv.FormatFloat(score.Base, 'f', 4, 64),
			learned,
			strconv.FormatFloat(score.Weight, 'f', 4, 64),
			strconv.FormatFloat(score.Final, 'f', 4, 64),
			score.RiskLevel,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return nil
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeInput, "input", "i", "", "CSV export of email logs (required)")
	analyzeCmd.Flags().StringVarP(&analyzeConfig, "config", "c", "", "Configuration file path")
	analyzeCmd.Flags().StringVarP(&analyzeSession, "session", "s", "", "Session id (generated when omitted)")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "Write per-record scores to CSV")
	analyzeCmd.Flags().IntVarP(&analyzeTop, "top", "t", 10, "Number of top risk records to print")
}
