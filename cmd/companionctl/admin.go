package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/fiberfriends/companion-engine/internal/infrastructure/persistence/postgres"
)

var migrateFlags struct {
	status   bool
	rollback bool
}

var migrateCmd = &cobra.Command{
	Use:         "migrate",
	Short:       "Apply, inspect or roll back PostgreSQL migrations",
	Annotations: map[string]string{"migrations": "skip"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if app.Postgres == nil {
			return errNoPostgres
		}
		ctx := cmd.Context()
		m := postgres.NewMigrator(app.Postgres)

		switch {
		case migrateFlags.rollback:
			if err := m.Rollback(ctx); err != nil {
				return err
			}
		case !migrateFlags.status:
			applied, err := m.Migrate(ctx)
			if err != nil {
				return err
			}
			cmd.PrintErrf("applied %d migration(s)\n", applied)
		}

		migrations, err := m.Status(ctx)
		if err != nil {
			return err
		}
		type row struct {
			Version   int        `json:"version"`
			Name      string     `json:"name"`
			Applied   bool       `json:"applied"`
			AppliedAt *time.Time `json:"applied_at,omitempty"`
		}
		rows := make([]row, 0, len(migrations))
		for _, mig := range migrations {
			r := row{Version: mig.Version, Name: mig.Name, Applied: mig.IsApplied}
			if mig.IsApplied {
				at := mig.AppliedAt
				r.AppliedAt = &at
			}
			rows = append(rows, r)
		}
		return printJSON(cmd, rows)
	},
}

var runJobCmd = &cobra.Command{
	Use:   "run-job NAME",
	Short: "Run one of the worker's scheduled jobs once",
	Long: "Run a scheduled job synchronously, outside its schedule.\n" +
		"Jobs: reset_daily_counters, reset_weekly_counters, reset_monthly_counters, recompute_stale_impact.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := app.NewScheduler()
		if err != nil {
			return err
		}
		result, err := s.RunNow(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := map[string]any{
			"job":      result.JobName,
			"success":  result.Success,
			"duration": result.Duration.String(),
		}
		if result.Error != nil {
			out["error"] = result.Error.Error()
		}
		if err := printJSON(cmd, out); err != nil {
			return err
		}
		return result.Error
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateFlags.status, "status", false, "only show migration status")
	migrateCmd.Flags().BoolVar(&migrateFlags.rollback, "rollback", false, "roll back the latest migration")
	migrateCmd.MarkFlagsMutuallyExclusive("status", "rollback")
}
