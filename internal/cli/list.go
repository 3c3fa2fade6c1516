package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"etlpipe/internal/service"
)

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show.")
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(pipelinesCmd, sourcesCmd, historyCmd)
}

var pipelinesCmd = &cobra.Command{
	Use:   "pipelines",
	Short: "Lists configured pipelines with their last run.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs, err := openServices(cmd, service.Options{})
		if err != nil {
			return err
		}
		defer svcs.Close()

		pipelines, err := svcs.ETL.ListPipelines()
		if err != nil {
			return err
		}
		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Name", "Source", "Sinks", "Trigger", "Last run", "Status"})
		for _, p := range pipelines {
			lastRun, status := "never", ""
			if p.LastRun != nil {
				lastRun = p.LastRun.StartedAt.Format(time.DateTime)
				status = p.LastRun.Status
			}
			t.AppendRow(table.Row{p.Name, p.Source, strings.Join(p.Sinks, ", "), p.Trigger, lastRun, status})
		}
		t.Render()
		return nil
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Lists the available source types and their configuration keys.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs, err := openServices(cmd, service.Options{NoHistory: true})
		if err != nil {
			return err
		}
		defer svcs.Close()

		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Type", "Label", "Config"})
		for _, spec := range svcs.ETL.ListSources() {
			keys := make([]string, len(spec.ConfigFields))
			for i, f := range spec.ConfigFields {
				keys[i] = f.Key
				if f.Required {
					keys[i] += "*"
				}
			}
			t.AppendRow(table.Row{spec.Type, spec.Label, strings.Join(keys, ", ")})
		}
		t.Render()
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [pipeline] [--limit <n>]",
	Short: "Lists recorded runs, newest first.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs, err := openServices(cmd, service.Options{})
		if err != nil {
			return err
		}
		defer svcs.Close()

		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		runs, err := svcs.ETL.ListRunLogs(name, historyLimit)
		if err != nil {
			return err
		}
		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"ID", "Pipeline", "Started", "Trigger", "Status", "Phase", "Read", "Written", "Error"})
		for _, r := range runs {
			t.AppendRow(table.Row{
				r.ID, r.Pipeline, r.StartedAt.Format(time.DateTime), r.Trigger,
				r.Status, r.Phase, r.RowsRead, r.RowsWritten, r.Error,
			})
		}
		t.Render()
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Prints a recorded run and the stored results of its queries.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs, err := openServices(cmd, service.Options{})
		if err != nil {
			return err
		}
		defer svcs.Close()

		detail, err := svcs.ETL.GetRun(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		r := detail.Run
		fmt.Fprintf(out, "%s  %s  %s (%s)  read %d  written %d\n",
			r.Pipeline, r.StartedAt.Format(time.DateTime), r.Status, r.Phase, r.RowsRead, r.RowsWritten)
		if r.Error != "" {
			fmt.Fprintln(out, r.Error)
		}
		for _, q := range detail.Queries {
			fmt.Fprintln(out, q.Query)
			renderFrame(out, q.Frame)
		}
		return nil
	},
}
