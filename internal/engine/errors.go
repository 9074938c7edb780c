package engine

import "fmt"

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

// permissionDenied is the hard failure for endpoints that have no unit to
// stay on. Interactive submissions downgrade denials to a message instead.
func permissionDenied(message string) *DomainError {
	return domainError(403, "permission_denied", message, nil)
}

func validationError(message string) *DomainError {
	return domainError(400, "validation", message, nil)
}

func notFound(message string) *DomainError {
	return domainError(404, "not_found", message, nil)
}
