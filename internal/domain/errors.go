package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrLockHeld            = errors.New("lock already held")
	ErrUnauthorizedAccount = errors.New("unauthorized account")
	ErrInvalidOwner        = errors.New("invalid owner")
	ErrInvalidProtocol     = errors.New("invalid protocol")
	ErrInvalidToken        = errors.New("invalid token")
	ErrCallFailed          = errors.New("external call failed")
	ErrUnavailable         = errors.New("backend not configured")
)
