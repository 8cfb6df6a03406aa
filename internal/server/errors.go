package server

import "errors"

// Server-specific errors
var (
	ErrServerClosed         = errors.New("server is closed")
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrDuplicateService     = errors.New("service is already exposed")
	ErrInvalidService       = errors.New("invalid service definition")
)
