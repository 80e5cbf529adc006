package reminder

import "errors"

var (
	ErrInvalidInterval      = errors.New("interval must be between 1 and 1440 minutes")
	ErrInvalidDisabledHours = errors.New("disabled hours must be between 0 and 23")
	ErrInvalidTransition    = errors.New("invalid state transition")
	ErrUnknownCommand       = errors.New("unknown command")
	ErrClosed               = errors.New("engine closed")
)
