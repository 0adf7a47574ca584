package cashier

import "errors"

var (
	ErrInvalidPaymentType = errors.New("invalid payment type")
	ErrInvalidAmount      = errors.New("payment amount must be positive")
	ErrVisitNotFound      = errors.New("visit not found")
	ErrLabRequestNotFound = errors.New("lab request not found")
)
