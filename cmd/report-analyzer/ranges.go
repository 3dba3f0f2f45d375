package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/medreport-analyzer/internal/service"
)

func rangesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ranges",
		Short: "Print the reference ranges used for classification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ranges := service.ReferenceRanges()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), ranges)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MARKER\tMIN\tMAX\tUNIT")
			for _, r := range ranges {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Marker,
					strconv.FormatFloat(r.Min, 'f', -1, 64),
					strconv.FormatFloat(r.Max, 'f', -1, 64),
					r.Unit)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	return cmd
}
