package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrLoopRunning         = errors.New("loop already running")
	ErrLoopNotRunning      = errors.New("loop not running")
	ErrMissingCollaborator = errors.New("missing collaborator")
	ErrSettingsDisabled    = errors.New("maker settings disabled")
	ErrUnknownExchange     = errors.New("unknown exchange")
	ErrEmptyBook           = errors.New("orderbook side empty")
)
