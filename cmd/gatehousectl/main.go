// Command gatehousectl performs operator tasks against the gatehouse store:
// bootstrapping an administrator, purging aged records and printing stats.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"gatehouse/internal/app"
	"gatehouse/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "gatehousectl",
	Short:         "Operator tools for gatehouse",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "config.yaml", "path to config file")
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openApp loads the config named by --config and opens the store. Every
// command here needs the database, so disabled mode is an error.
func openApp(cmd *cobra.Command) (*app.App, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cfg.Database.Disabled {
		return nil, fmt.Errorf("database is disabled in %s", path)
	}
	return app.New(cfg, app.Options{})
}
