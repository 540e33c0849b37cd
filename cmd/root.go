package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mailguard",
	Short: "MailGuard - adaptive email exfiltration risk scoring",
	Long: `MailGuard analyzes exported email logs for potential security incidents:
data exfiltration, insider threats and phishing.

Records are scored by an unsupervised anomaly model blended with an
adaptive classifier that learns from analyst escalate/clear decisions.
The more decisions you record, the more weight the learned model gets.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("MailGuard - Email Exfiltration Risk Scoring")
		fmt.Println("Use 'mailguard --help' for usage information")
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(decideCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(generateCmd)
}
