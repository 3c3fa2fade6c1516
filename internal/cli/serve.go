package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "etlpipe/internal/mcp"
	"etlpipe/internal/service"
)

const shutdownGrace = 30 * time.Second

var allowWrites bool

func init() {
	mcpCmd.Flags().BoolVar(&allowWrites, "allow-writes", false, "Let execute_query run statements that modify data.")
	rootCmd.AddCommand(serveCmd, mcpCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs scheduled and file-watch pipelines until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		svcs, err := openServices(cmd, service.Options{})
		if err != nil {
			return err
		}
		defer svcs.Close()

		n, err := svcs.ETL.StartTriggers(ctx)
		if err != nil {
			slog.Warn("serve: some triggers did not start", "err", err)
		}
		if n == 0 {
			return fmt.Errorf("no schedule or file_watch triggers to serve")
		}
		slog.Info("serve: waiting for triggers", "active", n)

		<-ctx.Done()
		slog.Info("serve: shutting down")
		svcs.ETL.Stop()

		waitCtx, waitCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer waitCancel()
		svcs.ETL.WaitRunning(waitCtx)
		return nil
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp [--allow-writes]",
	Short: "Serves pipelines, run history and connections over MCP on stdin/stdout.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs, err := openServices(cmd, service.Options{})
		if err != nil {
			return err
		}
		defer svcs.Close()

		srv := mcpserver.New(mcpserver.Deps{
			ETL:         svcs.ETL,
			Database:    svcs.Database,
			AllowWrites: allowWrites,
		})
		if err := srv.ServeStdio(); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	},
}
