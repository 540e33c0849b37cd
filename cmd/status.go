package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mailguard/mailguard/pkg/config"
	"github.com/mailguard/mailguard/pkg/learning"
	"github.com/mailguard/mailguard/pkg/logging"
	"github.com/mailguard/mailguard/pkg/session"
)

var (
	statusConfig string
	statusJSON   bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show learning state and backend health",
	Long: `Display the adaptive learning status: feedback totals, escalation
rate, current blend weight, model maturity and storage backend info.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(statusConfig)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}

		logger, err := logging.NewLogger(cfg.Logging)
		if err != nil {
			return err
		}
		defer logger.Sync()

		fbStore, modelStore, err := openStores(cfg, logger)
		if err != nil {
			return err
		}
		defer fbStore.Close()
		defer modelStore.Close()

		ctx := context.Background()
		analyzer := session.NewAnalyzer(cfg, logger, fbStore, modelStore)

		snap, err := analyzer.Snapshot(ctx)
		if err != nil {
			return err
		}

		var globalState *learning.ModelState
		if cfg.Learning.Scope == "global" {
			globalState, err = modelStore.Load(ctx, session.GlobalScope)
			if err != nil && !errors.Is(err, learning.ErrNoState) {
				return err
			}
		}

		if statusJSON {
			return printStatusJSON(cfg, snap, globalState)
		}

		fmt.Printf("🛡️  MailGuard Learning Status\n")
		fmt.Printf("════════════════════════════════════════\n")
		fmt.Printf("Decisions recorded: %d\n", snap.Decisions)
		fmt.Printf("  Escalated: %d\n", snap.Escalated)
		fmt.Printf("  Cleared:   %d\n", snap.Cleared)
		fmt.Printf("Escalation rate: %.1f%%\n", snap.EscalationRate*100)
		fmt.Printf("Blend weight:    %.1f%%\n", snap.BlendWeight*100)
		fmt.Printf("Model maturity:  %s\n", snap.Maturity)
		fmt.Printf("\nLearning: scope=%s backend=%s retrain every %d decisions\n",
			cfg.Learning.Scope, cfg.Learning.Backend, cfg.Learning.RetrainEvery)

		if globalState != nil {
			fmt.Printf("Global model: trained on %d decisions (updated %s)\n",
				globalState.TrainedOn, globalState.UpdatedAt.Format("2006-01-02 15:04:05"))
		}

		switch {
		case snap.Decisions == 0:
			fmt.Printf("\n💡 Record escalate/clear decisions to start adaptive learning\n")
		case snap.Decisions < cfg.Learning.MinFeedback:
			fmt.Printf("\n💡 %d more decisions until the adaptive model activates\n",
				cfg.Learning.MinFeedback-snap.Decisions)
		default:
			fmt.Printf("\n💡 Adaptive weight grows with each decision (cap %.0f%%)\n",
				cfg.Blend.Ceiling*100)
		}

		return nil
	},
}

func printStatusJSON(cfg *config.Config, snap *session.Snapshot, state *learning.ModelState) error {
	payload := map[string]interface{}{
		"decisions":       snap.Decisions,
		"escalated":       snap.Escalated,
		"cleared":         snap.Cleared,
		"escalation_rate": snap.EscalationRate,
		"blend_weight":    snap.BlendWeight,
		"maturity":        snap.Maturity,
		"scope":           cfg.Learning.Scope,
		"backend":         cfg.Learning.Backend,
	}
	if state != nil {
		payload["global_model_trained_on"] = state.TrainedOn
		payload["global_model_updated_at"] = state.UpdatedAt
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

func init() {
	statusCmd.Flags().StringVarP(&statusConfig, "config", "c", "", "Configuration file path")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status as JSON")
}
