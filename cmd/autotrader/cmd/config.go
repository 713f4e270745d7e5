package cmd

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/autotrader/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage the autotrader configuration file.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  autotrader config init -o autotrader.yaml
  autotrader config validate -f autotrader.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "autotrader.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nSet AUTOTRADER_OANDA_TOKEN and AUTOTRADER_OANDA_ACCOUNT_ID, then run:")
	fmt.Fprintf(out, "  autotrader run -c %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration valid: %s\n", configValidatePath)
	fmt.Fprintf(out, "  Venue: %s (%s)\n", cfg.Venue.Environment, cfg.Account.Currency)
	fmt.Fprintf(out, "  Instruments: %s\n", strings.Join(cfg.Trading.Instruments, ", "))
	fmt.Fprintf(out, "  Risk: %.1f%% default, daily loss limit %.0f%%\n",
		cfg.Risk.DefaultRiskFraction*100, cfg.Risk.MaxDailyLossPct*100)
	fmt.Fprintf(out, "  Storage: %s in %s\n", cfg.Storage.Backend, cfg.Storage.Dir)
	return nil
}
