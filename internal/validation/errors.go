package validation

// Error is a rejected user input. Handlers answer it with 400.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func invalid(field, message string) error {
	return &Error{Field: field, Message: message}
}
