package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxGoalTextLength = 100
	MaxLongTextLength = 500
	MaxMessageLength  = 1000
	MaxMilestoneTitle = 100
)

// RequiredText trims s and checks it has 1..max characters.
func RequiredText(field, s string, max int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", invalid(field, fmt.Sprintf("%s is required", field))
	}
	if utf8.RuneCountInString(s) > max {
		return "", invalid(field, fmt.Sprintf("%s is too long (max %d characters)", field, max))
	}
	return s, nil
}

// OptionalText trims s. Blank input becomes nil.
func OptionalText(field string, s *string, max int) (*string, error) {
	if s == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(trimmed) > max {
		return nil, invalid(field, fmt.Sprintf("%s is too long (max %d characters)", field, max))
	}
	return &trimmed, nil
}
