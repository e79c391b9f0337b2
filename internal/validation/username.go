package validation

import (
	"regexp"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ValidateUsername allows 3 to 30 letters, digits and underscores.
func ValidateUsername(username string) error {
	if username == "" {
		return invalid("username", "username is required")
	}
	if len(username) < 3 || len(username) > 30 {
		return invalid("username", "username must be between 3 and 30 characters")
	}
	if !usernamePattern.MatchString(username) {
		return invalid("username", "username may only contain letters, numbers and underscores")
	}
	return nil
}
