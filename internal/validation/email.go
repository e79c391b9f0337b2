package validation

import (
	"net/mail"
)

// ValidateEmail checks length and RFC 5322 syntax.
func ValidateEmail(email string) error {
	// RFC 5321 caps the whole address at 254
	if len(email) > 254 {
		return invalid("email", "email address is too long (max 254 characters)")
	}

	if email == "" {
		return invalid("email", "email address is required")
	}

	_, err := mail.ParseAddress(email)
	if err != nil {
		return invalid("email", "invalid email address format")
	}

	return nil
}
