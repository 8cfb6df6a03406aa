package websocket

import (
	"time"
)

// BindingType identifies endpoints served by this binding.
const BindingType = "websocket"

// Config holds transport settings shared by the reference and service sides.
type Config struct {
	// ReadTimeout bounds the wait for a response on the reference side.
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	// MaxMessageSize limits inbound frames; 0 means unlimited.
	MaxMessageSize int64
}

func DefaultConfig() Config {
	return Config{
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		MaxMessageSize:   1 << 20,
	}
}
