package models

import "errors"

// Protocol error kinds. Services wrap these with context; the HTTP layer
// maps them to status codes.
var (
	ErrUnauthorized  = errors.New("caller is not allowed to perform this action")
	ErrBadState      = errors.New("operation not valid in the current deal state")
	ErrValueMismatch = errors.New("attached value does not match the required escrow")
	ErrTimeWindow    = errors.New("action attempted outside its time window")
	ErrBound         = errors.New("amount exceeds the allowed bound")
	ErrPool          = errors.New("arbitrator pool index out of range")
)
