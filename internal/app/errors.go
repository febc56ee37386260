package app

import "fmt"

type DomainError struct {
	Status  int
	Message string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func domainError(status int, format string, args ...any) *DomainError {
	return &DomainError{Status: status, Message: fmt.Sprintf(format, args...)}
}
