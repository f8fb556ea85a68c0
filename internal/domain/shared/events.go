package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. They are delivered to the notification layer that turns
// them into toasts, badges or log lines.
const (
	// Progress events
	EventPointsGranted       EventType = "progress.points_granted"
	EventTierUnlocked        EventType = "progress.tier_unlocked"
	EventProgressReset       EventType = "progress.reset"
	EventCelebrationAcked    EventType = "progress.celebration_acknowledged"
	EventCountersWindowReset EventType = "progress.counters_reset"

	// Impact events
	EventImpactScoreCalculated EventType = "impact.score_calculated"
	EventAchievementUnlocked   EventType = "impact.achievement_unlocked"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// PointsGrantedEvent is emitted after a grant has been committed.
type PointsGrantedEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	GrantID  string `json:"grant_id"`
	Action   string `json:"action"`
	Category string `json:"category"`
	Points   int    `json:"points"`
	NewTotal int    `json:"new_total"`
	NewTier  int    `json:"new_tier"`
}

// Payload implements Event interface.
func (e PointsGrantedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"grant_id":  e.GrantID,
		"action":    e.Action,
		"category":  e.Category,
		"points":    e.Points,
		"new_total": e.NewTotal,
		"new_tier":  e.NewTier,
	}
}

// NewPointsGrantedEvent creates a new PointsGrantedEvent.
func NewPointsGrantedEvent(userID, grantID, action, category string, points, newTotal, newTier int) PointsGrantedEvent {
	return PointsGrantedEvent{
		BaseEvent: NewBaseEvent(EventPointsGranted, userID),
		UserID:    userID,
		GrantID:   grantID,
		Action:    action,
		Category:  category,
		Points:    points,
		NewTotal:  newTotal,
		NewTier:   newTier,
	}
}

// TierUnlockedEvent is emitted once per tier crossed by a grant.
type TierUnlockedEvent struct {
	BaseEvent
	UserID   string   `json:"user_id"`
	Tier     int      `json:"tier"`
	TierName string   `json:"tier_name"`
	Features []string `json:"features"`
}

// Payload implements Event interface.
func (e TierUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"tier":      e.Tier,
		"tier_name": e.TierName,
		"features":  e.Features,
	}
}

// NewTierUnlockedEvent creates a new TierUnlockedEvent.
func NewTierUnlockedEvent(userID string, tier int, tierName string, features []string) TierUnlockedEvent {
	return TierUnlockedEvent{
		BaseEvent: NewBaseEvent(EventTierUnlocked, userID),
		UserID:    userID,
		Tier:      tier,
		TierName:  tierName,
		Features:  features,
	}
}

// ProgressResetEvent is emitted when an administrator resets a user.
type ProgressResetEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	PreviousTotal int    `json:"previous_total"`
	PreviousTier  int    `json:"previous_tier"`
}

// Payload implements Event interface.
func (e ProgressResetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"previous_total": e.PreviousTotal,
		"previous_tier":  e.PreviousTier,
	}
}

// NewProgressResetEvent creates a new ProgressResetEvent.
func NewProgressResetEvent(userID string, previousTotal, previousTier int) ProgressResetEvent {
	return ProgressResetEvent{
		BaseEvent:     NewBaseEvent(EventProgressReset, userID),
		UserID:        userID,
		PreviousTotal: previousTotal,
		PreviousTier:  previousTier,
	}
}

// CelebrationAcknowledgedEvent is emitted when the UI has shown a tier celebration.
type CelebrationAcknowledgedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	Tier   int    `json:"tier"`
}

// Payload implements Event interface.
func (e CelebrationAcknowledgedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"tier":    e.Tier,
	}
}

// NewCelebrationAcknowledgedEvent creates a new CelebrationAcknowledgedEvent.
func NewCelebrationAcknowledgedEvent(userID string, tier int) CelebrationAcknowledgedEvent {
	return CelebrationAcknowledgedEvent{
		BaseEvent: NewBaseEvent(EventCelebrationAcked, userID),
		UserID:    userID,
		Tier:      tier,
	}
}

// CountersResetEvent is emitted by the worker after a window rollover.
type CountersResetEvent struct {
	BaseEvent
	Window        string `json:"window"`
	UsersAffected int64  `json:"users_affected"`
}

// Payload implements Event interface.
func (e CountersResetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"window":         e.Window,
		"users_affected": e.UsersAffected,
	}
}

// NewCountersResetEvent creates a new CountersResetEvent.
func NewCountersResetEvent(window string, usersAffected int64) CountersResetEvent {
	return CountersResetEvent{
		BaseEvent:     NewBaseEvent(EventCountersWindowReset, window),
		Window:        window,
		UsersAffected: usersAffected,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Impact Events
// ═══════════════════════════════════════════════════════════════════════════

// ImpactScoreCalculatedEvent is emitted after a full impact recomputation was persisted.
type ImpactScoreCalculatedEvent struct {
	BaseEvent
	UserID      string  `json:"user_id"`
	Research    float64 `json:"research"`
	Support     float64 `json:"support"`
	Knowledge   float64 `json:"knowledge"`
	Mentoring   float64 `json:"mentoring"`
	Consistency float64 `json:"consistency"`
	Total       int     `json:"total"`

	CurrentStreak int `json:"current_streak"`
	LongestStreak int `json:"longest_streak"`
}

// Payload implements Event interface.
func (e ImpactScoreCalculatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"research":       e.Research,
		"support":        e.Support,
		"knowledge":      e.Knowledge,
		"mentoring":      e.Mentoring,
		"consistency":    e.Consistency,
		"total":          e.Total,
		"current_streak": e.CurrentStreak,
		"longest_streak": e.LongestStreak,
	}
}

// NewImpactScoreCalculatedEvent creates a new ImpactScoreCalculatedEvent.
func NewImpactScoreCalculatedEvent(userID string, research, support, knowledge, mentoring, consistency float64, total int) ImpactScoreCalculatedEvent {
	return ImpactScoreCalculatedEvent{
		BaseEvent:   NewBaseEvent(EventImpactScoreCalculated, userID),
		UserID:      userID,
		Research:    research,
		Support:     support,
		Knowledge:   knowledge,
		Mentoring:   mentoring,
		Consistency: consistency,
		Total:       total,
	}
}

// AchievementUnlockedEvent is emitted the first (and only) time an achievement is unlocked.
type AchievementUnlockedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	AchievementID string `json:"achievement_id"`
	Name          string `json:"name"`
	Category      string `json:"category"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"achievement_id": e.AchievementID,
		"name":           e.Name,
		"category":       e.Category,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, achievementID, name, category string) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementUnlocked, userID),
		UserID:        userID,
		AchievementID: achievementID,
		Name:          name,
		Category:      category,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope serializes an event's payload into an envelope.
func NewEnvelope(id string, event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}

	env := EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}
	if be, ok := event.(interface{ Base() BaseEvent }); ok {
		env.CorrelationID = be.Base().CorrelationID
		env.Version = be.Base().Version
	}
	return env, nil
}

// Base returns the embedded BaseEvent.
func (e BaseEvent) Base() BaseEvent {
	return e
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
