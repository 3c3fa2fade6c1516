package cli

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"etlpipe/internal/service"
)

func init() {
	rootCmd.AddCommand(queryCmd, tablesCmd)
}

var queryCmd = &cobra.Command{
	Use:   "query <connection> <sql>",
	Short: "Runs a SQL statement against a named connection.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs, err := openServices(cmd, service.Options{NoHistory: true})
		if err != nil {
			return err
		}
		defer svcs.Close()

		f, err := svcs.Database.Query(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		renderFrame(cmd.OutOrStdout(), f)
		return nil
	},
}

var tablesCmd = &cobra.Command{
	Use:   "tables <connection>",
	Short: "Lists the tables of a named connection with their columns.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs, err := openServices(cmd, service.Options{NoHistory: true})
		if err != nil {
			return err
		}
		defer svcs.Close()

		info, err := svcs.Database.Introspect(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Table", "Columns"})
		for _, tbl := range info.Tables {
			cols := make([]string, len(tbl.Columns))
			for i, c := range tbl.Columns {
				cols[i] = c.Name + " " + c.Type
			}
			t.AppendRow(table.Row{tbl.Name, strings.Join(cols, ", ")})
		}
		t.Render()
		return nil
	},
}
