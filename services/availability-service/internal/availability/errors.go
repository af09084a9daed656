package availability

// ValidationError marks a malformed request. It is returned before any
// collaborator is contacted and is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid availability request: " + e.Reason
}

func validationErr(reason string) error {
	return &ValidationError{Reason: reason}
}
