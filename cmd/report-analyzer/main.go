// Command report-analyzer analyzes medical reports from the command line and
// manages the analysis history.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/medreport-analyzer/internal/config"
	"github.com/medreport-analyzer/internal/domain"
	"github.com/medreport-analyzer/internal/logging"
)

// globalFlags are shared by every subcommand
type globalFlags struct {
	configFile string
	logLevel   string
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "report-analyzer",
		Short:         "Analyze medical report text and manage stored analyses",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "path to a config file (default: ./config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "log level written to stderr")

	rootCmd.AddCommand(analyzeCmd(flags))
	rootCmd.AddCommand(rangesCmd())
	rootCmd.AddCommand(historyCmd(flags))
	rootCmd.AddCommand(migrateCmd(flags))
	rootCmd.AddCommand(setupCmd())

	return rootCmd
}

// loadConfig reads and validates configuration for a subcommand
func (f *globalFlags) loadConfig() (*domain.Config, error) {
	manager, err := config.NewManagerWithFile(f.configFile)
	if err != nil {
		return nil, err
	}
	if err := manager.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return manager.GetConfig(), nil
}

// logger keeps stdout free for command output
func (f *globalFlags) logger(cfg *domain.Config) (*logrus.Logger, error) {
	logCfg := cfg.Logging
	logCfg.Output = "stderr"
	if f.logLevel != "" {
		logCfg.Level = f.logLevel
	}
	return logging.New(logCfg)
}
