package lab

import "errors"

var (
	ErrLabRequestNotFound = errors.New("lab request not found")
	ErrVisitNotFound      = errors.New("visit not found")
	ErrNoTests            = errors.New("at least one test is required")
	ErrInvalidPrice       = errors.New("test price cannot be negative")
	ErrNotPaid            = errors.New("lab request is not paid")
)
