package shared

import (
	"strings"
	"time"
	"unicode/utf8"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// MaxUserIDLength bounds the opaque identity supplied by the auth provider.
const MaxUserIDLength = 128

// UserID is the stable opaque identity issued by the identity provider.
// The engine never interprets it.
type UserID string

// IsValid checks that the ID is non-blank and reasonably short.
func (u UserID) IsValid() bool {
	s := strings.TrimSpace(string(u))
	return s != "" && utf8.RuneCountInString(s) <= MaxUserIDLength
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	u := UserID(strings.TrimSpace(id))
	if !u.IsValid() {
		return "", NewDomainError("shared", "NewUserID", ErrInvalidID, "user id must be non-empty and at most 128 characters")
	}
	return u, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Time Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// TimeRange represents a half-open time interval [From, To).
type TimeRange struct {
	From time.Time
	To   time.Time
}

// IsValid checks if the time range is valid.
func (t TimeRange) IsValid() bool {
	return !t.From.IsZero() && !t.To.IsZero() && t.From.Before(t.To)
}

// Duration returns the duration of the time range.
func (t TimeRange) Duration() time.Duration {
	return t.To.Sub(t.From)
}

// Contains checks if a time is within the range.
func (t TimeRange) Contains(tm time.Time) bool {
	return !tm.Before(t.From) && tm.Before(t.To)
}

// NewTimeRange creates a new TimeRange with validation.
func NewTimeRange(from, to time.Time) (TimeRange, error) {
	tr := TimeRange{From: from, To: to}
	if !tr.IsValid() {
		return TimeRange{}, NewDomainError("shared", "NewTimeRange", ErrValueOutOfRange, "from must be before to")
	}
	return tr, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination
// ═══════════════════════════════════════════════════════════════════════════

// Pagination limits list queries such as point history.
type Pagination struct {
	Page     int
	PageSize int
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Offset returns the offset for database queries.
func (p Pagination) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// Limit returns the limit for database queries.
func (p Pagination) Limit() int {
	if p.PageSize <= 0 {
		return defaultPageSize
	}
	if p.PageSize > maxPageSize {
		return maxPageSize
	}
	return p.PageSize
}

// NewPagination creates a new Pagination with sane bounds.
func NewPagination(page, pageSize int) Pagination {
	if page < 1 {
		page = 1
	}
	return Pagination{Page: page, PageSize: pageSize}
}

// DefaultPagination returns the first page with the default size.
func DefaultPagination() Pagination {
	return Pagination{Page: 1, PageSize: defaultPageSize}
}
