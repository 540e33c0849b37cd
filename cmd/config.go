package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mailguard/mailguard/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  `Generate and validate MailGuard configuration files`,
}

var configGenCmd = &cobra.Command{
	Use:   "generate [config-file]",
	Short: "Generate default configuration file",
	Long:  `Generate a default configuration file with all options`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := "mailguard.yaml"
		if len(args) > 0 {
			configPath = args[0]
		}

		if _, err := os.Stat(configPath); err == nil {
			overwrite, _ := cmd.Flags().GetBool("force")
			if !overwrite {
				return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
			}
		}

		defaultConfig := config.DefaultConfig()

		if err := defaultConfig.SaveConfig(configPath); err != nil {
			return fmt.Errorf("failed to save config: %v", err)
		}

		fmt.Printf("✅ Configuration file generated: %s\n", configPath)
		fmt.Printf("📝 Edit the file to tune scoring, blending and learning\n")
		fmt.Printf("🚀 Use 'mailguard analyze --config %s' to use it\n", configPath)

		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate configuration file",
	Long:  `Validate a configuration file for syntax and logical errors`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := args[0]

		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("❌ Configuration validation failed: %v", err)
		}

		fmt.Printf("✅ Configuration is valid: %s\n", configPath)
		fmt.Printf("   Blend weight: %.0f%% → %.0f%% over %d breakpoints\n",
			cfg.Blend.Floor*100, cfg.Blend.Ceiling*100, len(cfg.Blend.Breakpoints))
		fmt.Printf("   Learning: scope=%s backend=%s\n", cfg.Learning.Scope, cfg.Learning.Backend)

		return nil
	},
}

func init() {
	configGenCmd.Flags().BoolP("force", "f", false, "Overwrite existing config file")
	configCmd.AddCommand(configGenCmd)
	configCmd.AddCommand(configValidateCmd)
}
