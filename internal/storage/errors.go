package storage

import "errors"

// ErrInvalidAccount is returned when an account fails validation on save.
var ErrInvalidAccount = errors.New("invalid account")

// ErrAccountNotFound is returned by DeleteAccount for an unknown email.
var ErrAccountNotFound = errors.New("account not found")
