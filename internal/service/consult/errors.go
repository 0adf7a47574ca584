package consult

import "errors"

var (
	ErrEmptySymptoms   = errors.New("symptoms are required")
	ErrPatientNotFound = errors.New("patient not found")
	ErrVisitNotFound   = errors.New("visit not found")
	ErrNotAConsult     = errors.New("visit is not a consult")
	ErrMissingAnalysis = errors.New("diagnosis text or analysis is required")
)
