package assistant

import "errors"

var (
	ErrUnavailable   = errors.New("ai assistant is not configured")
	ErrEmptySymptoms = errors.New("symptoms or images are required")
	ErrEmptyQuestion = errors.New("question is required")
	ErrNoImage       = errors.New("image is required")
	ErrBadAnswer     = errors.New("ai assistant returned an unusable answer")
)
