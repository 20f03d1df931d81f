package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kalfix/kalfix/server/internal/config"
	"github.com/kalfix/kalfix/server/internal/metrics"
	"github.com/kalfix/kalfix/server/internal/shift"
	"github.com/kalfix/kalfix/server/internal/store"
)

const defaultConfigPath = "config.yaml"

var (
	configPath string
	uiDir      string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "kalfix-server",
		Short:        "Shift production counter server",
		SilenceUsage: true,
		RunE:         runServe,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to config file")
	rootCmd.Flags().StringVar(&uiDir, "ui-dir", "", "serve the dashboard static files from this directory (e.g. ui/dist); leave empty to disable")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server, WebSocket hub and alert engine",
		RunE:  runServe,
	}
	serveCmd.Flags().AddFlag(rootCmd.Flags().Lookup("ui-dir"))

	shiftsCmd := &cobra.Command{
		Use:   "shifts",
		Short: "List shifts that were never finalized",
		RunE:  runShifts,
	}

	rootCmd.AddCommand(serveCmd, shiftsCmd)
	return rootCmd
}

// loadConfig reads configPath. A missing file at the default path falls
// back to built-in defaults; fromFile reports whether a file was read.
func loadConfig(cmd *cobra.Command) (cfg *config.Config, fromFile bool, err error) {
	cfg, err = config.Load(configPath)
	if err == nil {
		return cfg, true, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		slog.Info("no config file, using defaults", "path", configPath)
		cfg, err = config.Default()
		return cfg, false, err
	}
	return nil, false, err
}

// runShifts prints every unfinished shift, the same list the server logs
// at startup.
func runShifts(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	loc, err := cfg.Server.Location()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Database.Path, store.WithRetry(retryPolicy(cfg.Database.Retry)))
	if err != nil {
		return err
	}
	defer st.Close()

	open, err := metrics.NewEngine(st, shift.NewClock(loc)).OpenShifts(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(open) == 0 {
		fmt.Fprintln(out, "no unfinished shifts")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SHIFT\tDATE\tGROSS\tLOSS\tNET\tSTARTED")
	for _, m := range open {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			m.Shift.Name, m.Shift.Date, m.Gross, m.Loss, m.Net,
			m.StartedAt.In(loc).Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func retryPolicy(c config.RetryConfig) store.RetryPolicy {
	return store.RetryPolicy{
		MaxAttempts: c.MaxAttempts,
		Initial:     c.InitialInterval,
		Max:         c.MaxInterval,
	}
}
