package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"etlpipe/internal/etl"
	"etlpipe/internal/service"
)

var (
	runAll      bool
	showQueries bool
	previewRows int
)

func init() {
	runCmd.Flags().BoolVar(&runAll, "all", false, "Run every configured pipeline in name order.")
	runCmd.Flags().BoolVarP(&showQueries, "show-queries", "q", true, "Print the result of each post-load query.")
	previewCmd.Flags().IntVarP(&previewRows, "rows", "n", 20, "Number of rows to extract and transform.")
	rootCmd.AddCommand(runCmd, previewCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [pipeline...] [--all]",
	Short: "Runs pipelines end to end and prints their query results.",
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs, err := openServices(cmd, service.Options{})
		if err != nil {
			return err
		}
		defer svcs.Close()

		names := args
		if runAll {
			names = svcs.Config.PipelineNames()
		}
		if len(names) == 0 {
			return fmt.Errorf("name at least one pipeline or pass --all")
		}

		out := cmd.OutOrStdout()
		var (
			errs    []error
			results []*etl.SyncResult
		)
		for _, name := range names {
			res, err := svcs.ETL.RunPipeline(cmd.Context(), name)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			if res == nil {
				continue
			}
			results = append(results, res)
			if showQueries {
				for _, q := range res.Queries {
					fmt.Fprintln(out, q.Query)
					renderFrame(out, q.Frame)
				}
			}
		}
		renderResults(cmd, results)
		return errors.Join(errs...)
	},
}

func renderResults(cmd *cobra.Command, results []*etl.SyncResult) {
	if len(results) == 0 {
		return
	}
	t := newTable(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Pipeline", "Status", "Phase", "Read", "Written", "Duration", "Error"})
	for _, r := range results {
		t.AppendRow(table.Row{
			r.Pipeline, r.Status, r.Phase.String(), r.RowsRead, r.RowsWritten,
			r.Duration.Round(time.Millisecond), r.Error,
		})
	}
	t.Render()
}

var previewCmd = &cobra.Command{
	Use:   "preview <pipeline> [--rows <n>]",
	Short: "Extracts and transforms the first rows of a pipeline without loading.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs, err := openServices(cmd, service.Options{NoHistory: true})
		if err != nil {
			return err
		}
		defer svcs.Close()

		f, err := svcs.ETL.Preview(cmd.Context(), args[0], previewRows)
		if err != nil {
			return err
		}
		renderFrame(cmd.OutOrStdout(), f)
		return nil
	},
}
