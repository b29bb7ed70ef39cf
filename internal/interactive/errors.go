package interactive

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/interactivectl/internal/account"
	"github.com/danmuck/interactivectl/internal/conn"
	"github.com/danmuck/interactivectl/internal/update"
)

var (
	ErrInvalidAuthentication = errors.New("interactive: invalid authentication")
	ErrConnectionFailed      = errors.New("interactive: connection failed")
	ErrNotConnected          = errors.New("interactive: not connected")
	ErrTimedOut              = errors.New("interactive: timed out waiting for a packet")
	ErrUnknownCardinality    = errors.New("interactive: button cardinality not known yet")
	ErrHandler               = errors.New("interactive: handler failed")
	ErrAlreadyRunning        = errors.New("interactive: session already running")
	ErrInvalidConfig         = errors.New("interactive: invalid config")

	// ErrValidation matches every rejected outbound update.
	ErrValidation = update.ErrValidation
)

// classify maps collaborator errors onto the session taxonomy, keeping the
// cause in the chain.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidAuthentication),
		errors.Is(err, ErrConnectionFailed),
		errors.Is(err, ErrTimedOut),
		errors.Is(err, ErrHandler):
		return err
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, account.ErrInvalidAuthentication):
		return fmt.Errorf("%w: %w", ErrInvalidAuthentication, err)
	case errors.Is(err, conn.ErrTimedOut):
		return fmt.Errorf("%w: %w", ErrTimedOut, err)
	default:
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
}

// retryable reports whether the reconnect policy may retry after err.
// Credential and handler errors never are.
func retryable(err error) bool {
	if errors.Is(err, ErrInvalidAuthentication) || errors.Is(err, ErrHandler) {
		return false
	}
	return errors.Is(err, ErrConnectionFailed) || errors.Is(err, ErrTimedOut)
}
