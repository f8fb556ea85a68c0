package progress

import (
	"fmt"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// POINT VALUES
// One table maps every grantable action to its points and category. Callers
// grant by action name and never hard-code point amounts.
// ══════════════════════════════════════════════════════════════════════════════

// Well-known actions.
const (
	ActionDailyCheckin         = "daily_checkin"
	ActionSymptomEntry         = "symptom_entry"
	ActionJournalEntry         = "journal_entry"
	ActionMoodLog              = "mood_log"
	ActionMedicationLog        = "medication_log"
	ActionForumPost            = "forum_post"
	ActionForumReply           = "forum_reply"
	ActionHelpfulVoteReceived  = "helpful_vote_received"
	ActionPeerConnection       = "peer_connection"
	ActionResearchConsent      = "research_consent"
	ActionSurveyCompleted      = "survey_completed"
	ActionStudyEnrolled        = "study_enrolled"
	ActionProfileCompleted     = "profile_completed"
	ActionCompanionChat        = "companion_chat"
	ActionAppointmentScheduled = "appointment_scheduled"
	ActionWeekStreak           = "streak_7_days"
	ActionMonthStreak          = "streak_30_days"
)

// PointValue is the award for one action.
type PointValue struct {
	Points   int
	Category Category
}

// PointValues maps action names to their award.
type PointValues map[string]PointValue

// DefaultPointValues returns the built-in action table.
func DefaultPointValues() PointValues {
	return PointValues{
		ActionDailyCheckin:         {Points: 10, Category: CategoryHealthTracking},
		ActionSymptomEntry:         {Points: 5, Category: CategoryHealthTracking},
		ActionJournalEntry:         {Points: 15, Category: CategoryHealthTracking},
		ActionMoodLog:              {Points: 5, Category: CategoryHealthTracking},
		ActionMedicationLog:        {Points: 5, Category: CategoryHealthTracking},
		ActionForumPost:            {Points: 20, Category: CategoryCommunity},
		ActionForumReply:           {Points: 10, Category: CategoryCommunity},
		ActionHelpfulVoteReceived:  {Points: 5, Category: CategoryCommunity},
		ActionPeerConnection:       {Points: 25, Category: CategoryCommunity},
		ActionResearchConsent:      {Points: 50, Category: CategoryResearch},
		ActionSurveyCompleted:      {Points: 30, Category: CategoryResearch},
		ActionStudyEnrolled:        {Points: 100, Category: CategoryResearch},
		ActionProfileCompleted:     {Points: 25, Category: CategoryEngagement},
		ActionCompanionChat:        {Points: 5, Category: CategoryEngagement},
		ActionAppointmentScheduled: {Points: 15, Category: CategoryEngagement},
		ActionWeekStreak:           {Points: 50, Category: CategoryMilestone},
		ActionMonthStreak:          {Points: 200, Category: CategoryMilestone},
	}
}

// Validate checks that every entry has positive points and a known category.
func (pv PointValues) Validate() error {
	if len(pv) == 0 {
		return fmt.Errorf("%w: table is empty", ErrInvalidPointValues)
	}
	for action, v := range pv {
		if action == "" {
			return fmt.Errorf("%w: empty action name", ErrInvalidPointValues)
		}
		if v.Points <= 0 {
			return fmt.Errorf("%w: action %q has non-positive points %d", ErrInvalidPointValues, action, v.Points)
		}
		if !v.Category.IsValid() {
			return fmt.Errorf("%w: action %q has unknown category %q", ErrInvalidPointValues, action, v.Category)
		}
	}
	return nil
}

// Lookup returns the award for an action.
func (pv PointValues) Lookup(action string) (PointValue, error) {
	v, ok := pv[action]
	if !ok {
		return PointValue{}, invalid("Lookup", ErrUnknownAction, fmt.Sprintf("no point value for action %q", action))
	}
	return v, nil
}

// Actions returns all action names in sorted order.
func (pv PointValues) Actions() []string {
	actions := make([]string, 0, len(pv))
	for a := range pv {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	return actions
}

// Merge returns a copy of pv with overrides applied on top.
func (pv PointValues) Merge(overrides PointValues) PointValues {
	out := make(PointValues, len(pv)+len(overrides))
	for a, v := range pv {
		out[a] = v
	}
	for a, v := range overrides {
		out[a] = v
	}
	return out
}
