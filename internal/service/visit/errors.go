package visit

import "errors"

var (
	ErrVisitNotFound    = errors.New("visit not found")
	ErrPatientNotFound  = errors.New("patient not found")
	ErrDoctorNotFound   = errors.New("doctor not found")
	ErrOpenVisitExists  = errors.New("patient already has an open visit")
	ErrNoMedications    = errors.New("at least one medication is required")
	ErrInvalidFee       = errors.New("visit fee cannot be negative")
	ErrMissingPatientID = errors.New("patient id is required")
)
