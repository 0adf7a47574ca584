package prescription

import "errors"

var (
	ErrPrescriptionNotFound = errors.New("prescription not found")
	ErrTemplateNotFound     = errors.New("prescription template not found")
	ErrTemplateName         = errors.New("template name is required")
	ErrNoMedications        = errors.New("at least one medication is required")
	ErrNotOwner             = errors.New("template belongs to another doctor")
)
