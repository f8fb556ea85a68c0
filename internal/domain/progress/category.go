package progress

import "strings"

// Category groups point grants by the kind of activity that earned them.
type Category string

const (
	CategoryHealthTracking Category = "health_tracking"
	CategoryCommunity      Category = "community"
	CategoryResearch       Category = "research"
	CategoryEngagement     Category = "engagement"
	CategoryMilestone      Category = "milestone"
)

// AllCategories returns every known category in display order.
func AllCategories() []Category {
	return []Category{
		CategoryHealthTracking,
		CategoryCommunity,
		CategoryResearch,
		CategoryEngagement,
		CategoryMilestone,
	}
}

// IsValid checks if the category is one of the known values.
func (c Category) IsValid() bool {
	switch c {
	case CategoryHealthTracking, CategoryCommunity, CategoryResearch, CategoryEngagement, CategoryMilestone:
		return true
	}
	return false
}

// String returns the string representation.
func (c Category) String() string {
	return string(c)
}

// ParseCategory parses a category name, case-insensitively.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", invalid("ParseCategory", ErrUnknownCategory, "category "+s+" is not one of health_tracking, community, research, engagement, milestone")
	}
	return c, nil
}
