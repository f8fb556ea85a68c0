package impact

import (
	"fmt"
	"math"

	"github.com/fiberfriends/companion-engine/internal/domain/shared"
)

// ErrInvalidConfig is returned when scorer configuration fails validation.
var ErrInvalidConfig = fmt.Errorf("invalid impact config: %w", shared.ErrConfiguration)

// Weights combine the five sub-scores into the total.
type Weights struct {
	Research    float64
	Support     float64
	Knowledge   float64
	Mentoring   float64
	Consistency float64
}

// DefaultWeights returns the 0.30/0.25/0.20/0.15/0.10 split.
func DefaultWeights() Weights {
	return Weights{
		Research:    0.30,
		Support:     0.25,
		Knowledge:   0.20,
		Mentoring:   0.15,
		Consistency: 0.10,
	}
}

// Total is the only way a total score is produced.
func (w Weights) Total(research, support, knowledge, mentoring, consistency float64) int {
	return int(math.Round(
		w.Research*research +
			w.Support*support +
			w.Knowledge*knowledge +
			w.Mentoring*mentoring +
			w.Consistency*consistency,
	))
}

// Config holds point values and bonus rules for the scorer.
type Config struct {
	// Points per research record type. Unknown types score zero.
	ResearchPoints map[ResearchType]float64

	// Base points per forum kind, before helpful votes.
	ForumBasePoints map[ForumKind]float64

	// HelpfulVotePoints is added to a forum item's value per helpful vote.
	HelpfulVotePoints float64

	// Points per active mentoring record kind.
	MentoringPoints map[MentoringKind]float64

	// DailyRecordPoints is awarded per daily-tracking record.
	DailyRecordPoints float64

	// StreakDayPoints is awarded per day of the current streak.
	StreakDayPoints float64

	// ResearchConsistencyBonus applies when research spans more than
	// ResearchBonusMonths distinct calendar months.
	ResearchConsistencyBonus float64
	ResearchBonusMonths      int

	// SupportMinVotes is the vote count at which forum items count as support.
	SupportMinVotes int

	// QualityBonus is a flat amount per post with at least QualityMinVotes votes.
	QualityBonus    float64
	QualityMinVotes int

	// KnowledgeMinVotes makes any forum item count as knowledge.
	KnowledgeMinVotes int

	// MentoringBonus applies when the user mentors more than MentoringBonusRecords.
	MentoringBonus        float64
	MentoringBonusRecords int

	// StreakLookbackDays caps the current streak.
	StreakLookbackDays int

	Weights Weights
}

// DefaultConfig returns the built-in scoring rules.
func DefaultConfig() Config {
	return Config{
		ResearchPoints: map[ResearchType]float64{
			ResearchConsent:          50,
			ResearchSurveyCompleted:  30,
			ResearchStudyEnrolled:    100,
			ResearchDataContribution: 40,
			ResearchFollowUp:         20,
		},
		ForumBasePoints: map[ForumKind]float64{
			ForumPost:  10,
			ForumReply: 5,
		},
		HelpfulVotePoints: 2,
		MentoringPoints: map[MentoringKind]float64{
			MentoringPeerConnection: 25,
			MentoringSession:        50,
			MentoringBuddy:          40,
		},
		DailyRecordPoints:        2,
		StreakDayPoints:          10,
		ResearchConsistencyBonus: 0.20,
		ResearchBonusMonths:      3,
		SupportMinVotes:          1,
		QualityBonus:             25,
		QualityMinVotes:          5,
		KnowledgeMinVotes:        3,
		MentoringBonus:           0.30,
		MentoringBonusRecords:    5,
		StreakLookbackDays:       30,
		Weights:                  DefaultWeights(),
	}
}

// Validate rejects negative values and a zero lookback window.
func (c Config) Validate() error {
	for k, v := range c.ResearchPoints {
		if v < 0 {
			return fmt.Errorf("%w: research points for %q are negative", ErrInvalidConfig, k)
		}
	}
	for k, v := range c.ForumBasePoints {
		if v < 0 {
			return fmt.Errorf("%w: forum points for %q are negative", ErrInvalidConfig, k)
		}
	}
	for k, v := range c.MentoringPoints {
		if v < 0 {
			return fmt.Errorf("%w: mentoring points for %q are negative", ErrInvalidConfig, k)
		}
	}
	if c.HelpfulVotePoints < 0 || c.DailyRecordPoints < 0 || c.StreakDayPoints < 0 || c.QualityBonus < 0 {
		return fmt.Errorf("%w: point values must not be negative", ErrInvalidConfig)
	}
	if c.ResearchConsistencyBonus < 0 || c.MentoringBonus < 0 {
		return fmt.Errorf("%w: bonus percentages must not be negative", ErrInvalidConfig)
	}
	if c.StreakLookbackDays <= 0 {
		return fmt.Errorf("%w: streak lookback must be positive", ErrInvalidConfig)
	}
	w := c.Weights
	if w.Research < 0 || w.Support < 0 || w.Knowledge < 0 || w.Mentoring < 0 || w.Consistency < 0 {
		return fmt.Errorf("%w: weights must not be negative", ErrInvalidConfig)
	}
	return nil
}
