package app

import "fmt"

// DomainError carries the HTTP status, machine code, and user-facing message
// for a failure the boundary turns into a structured response. Messages are
// in Indonesian, matching what the dashboard displays verbatim.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
