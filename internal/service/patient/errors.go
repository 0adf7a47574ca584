package patient

import "errors"

var (
	ErrPatientNotFound    = errors.New("patient not found")
	ErrMissingName        = errors.New("patient full name is required")
	ErrInvalidPhone       = errors.New("invalid phone number")
	ErrInvalidNationalID  = errors.New("national id must be 10 digits")
	ErrNationalIDTaken    = errors.New("a patient with this national id already exists")
	ErrEncryptionDisabled = errors.New("national id storage requires an encryption key")
	ErrBirthDateInFuture  = errors.New("birth date is in the future")
)
