package service

import "errors"

// Sentinel errors for the administrative operations. Store failures are
// wrapped and propagated separately.
var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrProtectedRole      = errors.New("operation not permitted on a protected role")
	ErrAlreadyDeactivated = errors.New("account is already deactivated")
	ErrAlreadyActive      = errors.New("account is already active")
)
