package staff

import "errors"

var (
	ErrStaffNotFound    = errors.New("staff member not found")
	ErrMissingName      = errors.New("full name is required")
	ErrInvalidUsername  = errors.New("username must be 3-32 lowercase letters, digits, dots, dashes or underscores")
	ErrUsernameTaken    = errors.New("username already taken")
	ErrInvalidRole      = errors.New("invalid staff role")
	ErrSelfDeactivation = errors.New("cannot deactivate your own account")
)
