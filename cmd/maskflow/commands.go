package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"maskflow/internal/domain"
	"maskflow/internal/masking"
	"maskflow/internal/secrets"
	"maskflow/internal/workflow"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <workflow-id>",
		Short: "Execute a workflow and wait for it to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res, err := a.executor.ExecuteWorkflow(ctx, args[0], a.user, nil)
				if res == nil {
					return err
				}
				out := cmd.OutOrStdout()
				if rec, gerr := a.store.GetExecution(ctx, res.ExecutionID); gerr == nil {
					printExecution(out, rec, true)
				}
				if wf, gerr := a.store.GetWorkflow(ctx, args[0]); gerr == nil {
					fmt.Fprintf(out, "workflow %s %s\n", wf.ID, wf.Status)
				}
				return err
			})
		},
	}
}

func newSubmitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <workflow-id>...",
		Short: "Run several workflows concurrently, bounded by max-concurrent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				runner := workflow.NewRunner(ctx, a.executor, a.cfg.Engine.MaxConcurrent)

				var (
					ids  []string
					errs []error
				)
				for _, wf := range args {
					id, err := runner.Submit(ctx, wf, a.user)
					if err != nil {
						errs = append(errs, err)
						continue
					}
					fmt.Fprintf(out, "submitted %s as execution %s\n", wf, id)
					ids = append(ids, id)
				}
				runner.Wait()

				for _, id := range ids {
					rec, err := runner.Status(ctx, id)
					if err != nil {
						errs = append(errs, err)
						continue
					}
					printExecution(out, rec, false)
					if rec.Status == domain.ExecutionFailed {
						errs = append(errs, fmt.Errorf("execution %s: %s", rec.ID, rec.ErrorMessage))
					}
				}
				return errors.Join(errs...)
			})
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "history <workflow-id>",
		Short: "List a workflow's executions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if _, err := a.wfs.Get(ctx, a.user, args[0]); err != nil {
					return err
				}
				recs, err := a.store.ListExecutions(ctx, args[0], offset, limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "EXECUTION\tSTATUS\tSTARTED\tRECORDS\tERROR")
				for _, e := range recs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
						e.ID, e.Status, e.StartedAt.Format("2006-01-02 15:04:05"), e.RecordsProcessed, e.ErrorMessage)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "executions to skip")
	cmd.Flags().IntVar(&limit, "limit", 20, "executions to show")
	return cmd
}

func newConnectionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "connections",
		Short: "List connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				conns, err := a.conns.List(ctx, a.user)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tKIND\tHOST\tSTATUS")
				for _, c := range conns {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Kind, c.Host, c.Status)
				}
				return tw.Flush()
			})
		},
	}
}

func newWorkflowsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "workflows",
		Short: "List workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				wfs, err := a.wfs.List(ctx, a.user)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tTABLES")
				for _, w := range wfs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", w.ID, w.Name, w.Status, len(w.TableMappings))
				}
				return tw.Flush()
			})
		},
	}
}

func newProbeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <connection-id>",
		Short: "Test a stored connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				ok, msg, err := a.conns.Test(ctx, a.user, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				if !ok {
					return fmt.Errorf("connection %s is not reachable", args[0])
				}
				return nil
			})
		},
	}
}

func newTablesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables <connection-id>",
		Short: "List the tables a connection can see",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				ad, err := a.conns.Open(ctx, a.user, args[0])
				if err != nil {
					return err
				}
				defer ad.Close(context.WithoutCancel(ctx))
				tables, err := ad.ListTables(ctx)
				if err != nil {
					return err
				}
				for _, t := range tables {
					fmt.Fprintln(cmd.OutOrStdout(), t)
				}
				return nil
			})
		},
	}
}

func newColumnsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "columns <connection-id> <table>",
		Short: "Describe a table's columns",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				ad, err := a.conns.Open(ctx, a.user, args[0])
				if err != nil {
					return err
				}
				defer ad.Close(context.WithoutCancel(ctx))
				meta, err := ad.TableMetadata(ctx, args[1])
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "COLUMN\tTYPE\tNULLABLE\tMAX_LENGTH\tIDENTITY")
				for _, c := range meta.Columns {
					fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%t\n", c.Name, c.DataType, c.Nullable, c.MaxLength, meta.IsIdentity(c.Name))
				}
				return tw.Flush()
			})
		},
	}
}

func newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the PII categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, c := range domain.ListCategories() {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
}

func newPreviewCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "preview <category> <sample>",
		Short: "Show synthetic values a category produces",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vals, err := masking.NewMasker(0).Preview(domain.PIICategory(args[0]), args[1], count)
			if err != nil {
				return err
			}
			for _, v := range vals {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 5, fmt.Sprintf("values to show (1-%d)", masking.MaxPreview))
	return cmd
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a new secrets key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := secrets.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func printExecution(w io.Writer, e *domain.Execution, withLogs bool) {
	if withLogs {
		for _, line := range e.Logs {
			fmt.Fprintln(w, line)
		}
	}
	fmt.Fprintf(w, "execution %s %s: %d record(s)", e.ID, e.Status, e.RecordsProcessed)
	if e.ErrorMessage != "" {
		fmt.Fprintf(w, ": %s", e.ErrorMessage)
	}
	fmt.Fprintln(w)
}
