package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/medreport-analyzer/internal/app"
)

// withHistory opens the configured history store for the duration of fn
func withHistory(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, components *app.App) error) error {
	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}
	// history commands never call the reasoning service
	cfg.Reasoning.Provider = "none"

	logger, err := flags.logger(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	components, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	if components.History == nil {
		return fmt.Errorf("history is disabled (history.driver is %q)", cfg.History.Driver)
	}
	return fn(ctx, components)
}

func historyCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and manage stored analyses",
	}

	var limit, offset int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored analyses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, flags, func(ctx context.Context, components *app.App) error {
				records, err := components.History.List(ctx, limit, offset)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCREATED\tPATH\tCRITICAL\tATTENTION\tSOURCE")
				for _, rec := range records {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
						rec.ID, rec.CreatedAt.Local().Format(time.RFC3339), rec.Path,
						rec.CriticalCount, rec.AttentionCount, rec.Source)
				}
				return tw.Flush()
			})
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "maximum number of analyses to list")
	listCmd.Flags().IntVar(&offset, "offset", 0, "number of analyses to skip")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print a stored analysis as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, flags, func(ctx context.Context, components *app.App) error {
				rec, err := components.History.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), rec)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, flags, func(ctx context.Context, components *app.App) error {
				if err := components.History.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	})

	var output string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export every stored analysis as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, flags, func(ctx context.Context, components *app.App) error {
				if output == "" || output == "-" {
					return components.History.ExportJSON(ctx, cmd.OutOrStdout())
				}
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating export file: %w", err)
				}
				defer f.Close()
				if err := components.History.ExportJSON(ctx, f); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported history to %s\n", output)
				return nil
			})
		},
	}
	exportCmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	cmd.AddCommand(exportCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Import analyses from an export, skipping ids that already exist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, flags, func(ctx context.Context, components *app.App) error {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()

				imported, skipped, err := components.History.ImportJSON(ctx, f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d analyses, skipped %d existing\n", imported, skipped)
				return nil
			})
		},
	})

	return cmd
}
