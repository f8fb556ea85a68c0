// Command companionctl is the operator CLI for the companion engine. It talks
// to the same stores as the worker and is meant for support tasks: granting
// points by hand, inspecting progress and impact, resetting a user and
// running migrations or jobs on demand.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fiberfriends/companion-engine/config"
	"github.com/fiberfriends/companion-engine/internal/bootstrap"
	"github.com/fiberfriends/companion-engine/pkg/logger"
)

var (
	app *bootstrap.App

	flagVerbose bool
	flagCompact bool
)

var rootCmd = &cobra.Command{
	Use:           "companionctl",
	Short:         "Operate the Fiber Friends progression and impact engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations["offline"] == "true" {
			return nil
		}
		return connect(cmd.Context(), cmd.Annotations["migrations"] == "skip")
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app == nil {
			return nil
		}
		ctx, cancel := bootstrap.ShutdownContext(app.Config)
		defer cancel()
		return app.Close(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log engine activity to stderr")
	rootCmd.PersistentFlags().BoolVar(&flagCompact, "compact", false, "print single-line JSON")

	rootCmd.AddCommand(
		grantCmd,
		progressCmd,
		historyCmd,
		resetCmd,
		ackCmd,
		resetCountersCmd,
		tiersCmd,
		impactCmd,
		recordCmd,
		migrateCmd,
		runJobCmd,
	)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func connect(ctx context.Context, skipMigrations bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := logger.LevelWarn
	if flagVerbose {
		level = logger.LevelDebug
	}
	log := logger.New(logger.Options{
		Output: os.Stderr,
		Level:  level,
		Format: logger.FormatConsole,
	})

	app, err = bootstrap.New(ctx, cfg, log, bootstrap.Options{SkipMigrations: skipMigrations})
	return err
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if !flagCompact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
