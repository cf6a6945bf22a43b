package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"ProductScout/internal/app"
)

var runJSON bool

var runCmd = &cobra.Command{
	Use:   "run <query>",
	Short: "Run one query synchronously and print the ranking",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the outcome as JSON")
	rootCmd.AddCommand(runCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init application: %w", err)
	}
	defer application.Close()

	text := strings.TrimSpace(strings.Join(args, " "))
	outcome, err := application.RunQuery(ctx, text)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	}
	printOutcome(out, outcome)
	if !outcome.Result.Success {
		return fmt.Errorf("run failed: %s", outcome.Result.Error)
	}
	return nil
}
