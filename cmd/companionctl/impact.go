package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/fiberfriends/companion-engine/internal/application/command"
	"github.com/fiberfriends/companion-engine/internal/application/query"
)

var impactFlags struct {
	user         string
	refresh      bool
	achievements bool
}

var impactCmd = &cobra.Command{
	Use:   "impact",
	Short: "Show a user's impact score",
	RunE: func(cmd *cobra.Command, args []string) error {
		dto, err := app.Queries.ImpactScore.Handle(cmd.Context(), query.GetImpactScoreQuery{
			UserID:              impactFlags.user,
			ForceRefresh:        impactFlags.refresh,
			IncludeAchievements: impactFlags.achievements,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, dto)
	},
}

var recordFlags struct {
	user          string
	kind          string
	typ           string
	forumCategory string
	votes         int
	mentee        string
	points        int
	at            string
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a research, forum, mentoring, daily or community activity",
	Example: "  companionctl record --user u1 --kind research --type consent\n" +
		"  companionctl record --user u1 --kind forum --type post --forum-category educational --votes 3",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := command.RecordActivityCommand{
			UserID:        recordFlags.user,
			Kind:          command.ActivityKind(recordFlags.kind),
			Type:          recordFlags.typ,
			ForumCategory: recordFlags.forumCategory,
			HelpfulVotes:  recordFlags.votes,
			MenteeID:      recordFlags.mentee,
			Points:        recordFlags.points,
		}
		if recordFlags.at != "" {
			at, err := time.Parse(time.RFC3339, recordFlags.at)
			if err != nil {
				return err
			}
			c.OccurredAt = at
		}

		res, err := app.Commands.RecordActivity.Handle(cmd.Context(), c)
		if err != nil {
			return err
		}
		out := map[string]any{
			"activity_id": res.ActivityID,
			"recorded_at": res.RecordedAt,
		}
		if res.Grant != nil {
			out["grant"] = newGrantOutput(res.Grant)
		}
		return printJSON(cmd, out)
	},
}

func init() {
	impactCmd.Flags().StringVar(&impactFlags.user, "user", "", "user ID")
	impactCmd.Flags().BoolVar(&impactFlags.refresh, "refresh", false, "recompute instead of reading the cache or store")
	impactCmd.Flags().BoolVar(&impactFlags.achievements, "achievements", false, "include unlocked achievements")
	requireFlags(impactCmd, "user")

	recordCmd.Flags().StringVar(&recordFlags.user, "user", "", "acting user ID")
	recordCmd.Flags().StringVar(&recordFlags.kind, "kind", "", "research, forum, mentoring, daily or community")
	recordCmd.Flags().StringVar(&recordFlags.typ, "type", "", "sub-type within the kind")
	recordCmd.Flags().StringVar(&recordFlags.forumCategory, "forum-category", "", "forum content category")
	recordCmd.Flags().IntVar(&recordFlags.votes, "votes", 0, "helpful votes on forum content")
	recordCmd.Flags().StringVar(&recordFlags.mentee, "mentee", "", "mentee ID for mentoring records")
	recordCmd.Flags().IntVar(&recordFlags.points, "points", 0, "points for community contributions")
	recordCmd.Flags().StringVar(&recordFlags.at, "at", "", "RFC3339 time the activity occurred (default: now)")
	requireFlags(recordCmd, "user", "kind", "type")
}
