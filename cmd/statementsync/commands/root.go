package commands

import (
	"context"
	"fmt"
	"os"

	"statementsync/internal/components/telemetry"
	"statementsync/internal/config"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	verbose      bool
	flagBaseUrl  string
	flagUsername string
	flagPassword string
)

var rootCmd = &cobra.Command{
	Use:          "statementsync",
	Short:        "statementsync downloads client account statements and balances from the booking site.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", config.FileName, "The config file to read.")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Print debug reports.")
	flags.StringVar(&flagBaseUrl, "base-url", "", "Override the booking site url.")
	flags.StringVarP(&flagUsername, "username", "u", "", "Override the login username.")
	flags.StringVarP(&flagPassword, "password", "p", "", "Override the login password.")
}

func ExecuteContext(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return err
}

// loadConfig reads the config file and applies the flags that override it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("read config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.BaseUrl = flagBaseUrl
	}
	if flags.Changed("username") {
		cfg.Username = flagUsername
	}
	if flags.Changed("password") {
		cfg.Password = flagPassword
	}
	return cfg, nil
}
