package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	user       string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "maskflow",
		Short:         "Copy tables between databases with PII masked",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "config file (default maskflow.yaml in . or ./config)")
	pf.StringVar(&opts.user, "user", defaultUser(), "user the commands act as")
	pf.String("store-driver", "memory", "definition store: memory or postgres")
	pf.String("store-dsn", "", "postgres DSN for the definition store")
	pf.String("bundle", "", "YAML bundle of connections and workflows to import at startup")
	pf.String("secrets-key", "", "base64 secretbox key for stored passwords")
	pf.Int("page-size", 1000, "rows fetched and inserted per batch")
	pf.Int("max-concurrent", 4, "executions allowed to run at once")
	pf.String("audit-dir", "", "directory for per-execution masking audit CSVs")
	pf.StringSlice("admins", nil, "users allowed to run any workflow")
	pf.String("log-level", "info", "log level")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("metrics-backend", "none", "metrics backend: none, prompush or datadog")
	pf.String("pushgateway-url", "", "Pushgateway base URL")
	pf.String("datadog-addr", "", "DogStatsD address")

	root.AddCommand(
		newRunCmd(opts),
		newSubmitCmd(opts),
		newHistoryCmd(opts),
		newConnectionsCmd(opts),
		newWorkflowsCmd(opts),
		newProbeCmd(opts),
		newTablesCmd(opts),
		newColumnsCmd(opts),
		newCategoriesCmd(),
		newPreviewCmd(),
		newKeygenCmd(),
	)
	return root
}

func defaultUser() string {
	if u := os.Getenv("MASKFLOW_USER"); u != "" {
		return u
	}
	return "local"
}

// withApp builds the app for cmd, runs fn, and releases everything after.
// SIGINT and SIGTERM cancel the context handed to fn.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd, opts.configFile, opts.user)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}
