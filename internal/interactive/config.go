package interactive

import (
	"fmt"
	"time"
)

// HandlerErrorPolicy decides what a handler error does to the receive loop.
type HandlerErrorPolicy int

const (
	// PropagateHandlerErrors ends the session and returns the error from Start.
	PropagateHandlerErrors HandlerErrorPolicy = iota
	// LogHandlerErrors logs the error and keeps receiving.
	LogHandlerErrors
)

func (p HandlerErrorPolicy) String() string {
	switch p {
	case PropagateHandlerErrors:
		return "propagate"
	case LogHandlerErrors:
		return "log"
	default:
		return fmt.Sprintf("HandlerErrorPolicy(%d)", int(p))
	}
}

// HandlerMode is the calling convention for packet handlers.
type HandlerMode int

const (
	// HandlersInline runs each handler on the receive goroutine before the next wait.
	HandlersInline HandlerMode = iota
	// HandlersQueued hands packets, in receive order, to one handler goroutine
	// so a slow handler does not eat into the receive timeout.
	HandlersQueued
)

func (m HandlerMode) String() string {
	switch m {
	case HandlersInline:
		return "inline"
	case HandlersQueued:
		return "queued"
	default:
		return fmt.Sprintf("HandlerMode(%d)", int(m))
	}
}

// BackoffConfig shapes the delay between reconnect attempts. The first
// retry always waits Config.ReconnectDelay.
type BackoffConfig struct {
	Multiplier float64
	MaxDelay   time.Duration
	Jitter     bool
}

type Config struct {
	// Timeout bounds each wait for an inbound packet. Required.
	Timeout       time.Duration
	AutoReconnect bool
	// MaxReconnectAttempts is the retry budget for one Start; -1 is unlimited.
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	Backoff              BackoffConfig
	HandlerErrors        HandlerErrorPolicy
	HandlerMode          HandlerMode
	// QueueSize is the packet buffer used in HandlersQueued mode.
	QueueSize int
}

// DefaultConfig returns everything but Timeout, which callers must set.
func DefaultConfig() Config {
	return Config{
		AutoReconnect:        false,
		MaxReconnectAttempts: -1,
		ReconnectDelay:       5 * time.Second,
		Backoff:              BackoffConfig{Multiplier: 1},
		HandlerErrors:        PropagateHandlerErrors,
		HandlerMode:          HandlersInline,
		QueueSize:            64,
	}
}

func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be > 0", ErrInvalidConfig)
	}
	if c.MaxReconnectAttempts < -1 {
		return fmt.Errorf("%w: max_reconnect_attempts must be -1 or greater", ErrInvalidConfig)
	}
	if c.ReconnectDelay < 0 {
		return fmt.Errorf("%w: reconnect_delay must not be negative", ErrInvalidConfig)
	}
	if c.Backoff.Multiplier < 0 || c.Backoff.MaxDelay < 0 {
		return fmt.Errorf("%w: backoff values must not be negative", ErrInvalidConfig)
	}
	if c.HandlerErrors != PropagateHandlerErrors && c.HandlerErrors != LogHandlerErrors {
		return fmt.Errorf("%w: unknown handler error policy %d", ErrInvalidConfig, int(c.HandlerErrors))
	}
	if c.HandlerMode != HandlersInline && c.HandlerMode != HandlersQueued {
		return fmt.Errorf("%w: unknown handler mode %d", ErrInvalidConfig, int(c.HandlerMode))
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.Backoff.Multiplier == 0 {
		c.Backoff.Multiplier = 1
	}
	return c
}
