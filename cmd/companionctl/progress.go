package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/fiberfriends/companion-engine/config"
	"github.com/fiberfriends/companion-engine/internal/application/command"
	"github.com/fiberfriends/companion-engine/internal/application/query"
	"github.com/fiberfriends/companion-engine/internal/domain/progress"
)

type grantOutput struct {
	GrantID      string    `json:"grant_id"`
	Action       string    `json:"action"`
	Points       int       `json:"points"`
	Category     string    `json:"category"`
	NewTotal     int       `json:"new_total"`
	PreviousTier int       `json:"previous_tier"`
	NewTier      int       `json:"new_tier"`
	TiersCrossed []string  `json:"tiers_crossed,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func newGrantOutput(r *command.GrantPointsResult) grantOutput {
	out := grantOutput{
		GrantID:      r.Grant.ID,
		Action:       r.Grant.Action,
		Points:       r.Grant.Points,
		Category:     string(r.Grant.Category),
		NewTotal:     r.NewTotal,
		PreviousTier: r.PreviousTier,
		NewTier:      r.NewTier,
		CreatedAt:    r.Grant.CreatedAt,
	}
	for _, t := range r.TiersCrossed {
		out.TiersCrossed = append(out.TiersCrossed, t.Name)
	}
	return out
}

var grantFlags struct {
	user     string
	action   string
	points   int
	category string
}

var grantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Grant points to a user",
	Long: "Grant points for a configured action, or an explicit amount when --points is given.\n" +
		"Explicit grants require --category.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var (
			res *command.GrantPointsResult
			err error
		)
		if grantFlags.points != 0 {
			category, perr := progress.ParseCategory(grantFlags.category)
			if perr != nil {
				return perr
			}
			res, err = app.Commands.GrantPoints.Handle(ctx, command.GrantPointsCommand{
				UserID:   grantFlags.user,
				Points:   grantFlags.points,
				Action:   grantFlags.action,
				Category: category,
			})
		} else {
			res, err = app.Commands.GrantPoints.HandleAction(ctx, command.GrantActionCommand{
				UserID: grantFlags.user,
				Action: grantFlags.action,
			})
		}
		if err != nil {
			return err
		}
		return printJSON(cmd, newGrantOutput(res))
	},
}

var progressUser string

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show a user's tier progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		dto, err := app.Queries.TierProgress.Handle(cmd.Context(), query.GetTierProgressQuery{UserID: progressUser})
		if err != nil {
			return err
		}
		return printJSON(cmd, dto)
	},
}

var historyFlags struct {
	user string
	page int
	size int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List a user's point grants, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		grants, err := app.Queries.PointHistory.Handle(cmd.Context(), query.GetPointHistoryQuery{
			UserID:   historyFlags.user,
			Page:     historyFlags.page,
			PageSize: historyFlags.size,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, grants)
	},
}

var resetFlags struct {
	user   string
	reason string
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset a user's progress to the first tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := app.Commands.ResetProgress.Handle(cmd.Context(), command.ResetProgressCommand{
			UserID: resetFlags.user,
			Reason: resetFlags.reason,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{
			"had_progress":   res.HadProgress,
			"previous_total": res.PreviousTotal,
			"previous_tier":  res.PreviousTier,
		})
	},
}

var ackFlags struct {
	user string
	tier int
}

var ackCmd = &cobra.Command{
	Use:   "ack",
	Short: "Mark a tier celebration as shown",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := app.Commands.AcknowledgeCelebration.Handle(cmd.Context(), command.AcknowledgeCelebrationCommand{
			UserID: ackFlags.user,
			Tier:   ackFlags.tier,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]bool{"acknowledged": res.Acknowledged})
	},
}

var resetCountersCmd = &cobra.Command{
	Use:       "reset-counters daily|weekly|monthly",
	Short:     "Zero a rolling point counter for every user",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(progress.WindowDaily), string(progress.WindowWeekly), string(progress.WindowMonthly)},
	RunE: func(cmd *cobra.Command, args []string) error {
		window := progress.Window(args[0])
		affected, err := app.Commands.ResetCounters.Handle(cmd.Context(), command.ResetCountersCommand{Window: window})
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{"window": window, "affected": affected})
	},
}

var tiersRulesPath string

var tiersCmd = &cobra.Command{
	Use:         "tiers",
	Short:       "Print the tier ladder",
	Annotations: map[string]string{"offline": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := config.LoadRules(tiersRulesPath)
		if err != nil {
			return err
		}
		return printJSON(cmd, query.ListTiers(rules.Tiers))
	},
}

func requireFlags(cmd *cobra.Command, names ...string) {
	for _, n := range names {
		if err := cmd.MarkFlagRequired(n); err != nil {
			panic(err)
		}
	}
}

var errNoPostgres = errors.New("this command needs STORE_BACKEND=postgres")

func init() {
	grantCmd.Flags().StringVar(&grantFlags.user, "user", "", "user ID")
	grantCmd.Flags().StringVar(&grantFlags.action, "action", "", "action name")
	grantCmd.Flags().IntVar(&grantFlags.points, "points", 0, "explicit amount, bypasses the action table")
	grantCmd.Flags().StringVar(&grantFlags.category, "category", "", "category for explicit grants")
	requireFlags(grantCmd, "user", "action")

	progressCmd.Flags().StringVar(&progressUser, "user", "", "user ID")
	requireFlags(progressCmd, "user")

	historyCmd.Flags().StringVar(&historyFlags.user, "user", "", "user ID")
	historyCmd.Flags().IntVar(&historyFlags.page, "page", 1, "page number")
	historyCmd.Flags().IntVar(&historyFlags.size, "size", 20, "page size")
	requireFlags(historyCmd, "user")

	resetCmd.Flags().StringVar(&resetFlags.user, "user", "", "user ID")
	resetCmd.Flags().StringVar(&resetFlags.reason, "reason", "", "audit note")
	requireFlags(resetCmd, "user", "reason")

	ackCmd.Flags().StringVar(&ackFlags.user, "user", "", "user ID")
	ackCmd.Flags().IntVar(&ackFlags.tier, "tier", 0, "tier level")
	requireFlags(ackCmd, "user", "tier")

	tiersCmd.Flags().StringVar(&tiersRulesPath, "rules", "", "YAML rules file (default: built-in ladder)")
}
