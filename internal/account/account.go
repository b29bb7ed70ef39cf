// Package account resolves a channel identity and joins its interactive
// session through the REST API.
//
// Ownership boundary:
// - credential validation
// - login / current-user lookup (channel id)
// - join (session endpoint address + key)
// - classification of failures into credential vs network errors
package account

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrInvalidAuthentication means the credentials or the identity response
	// were malformed. It is never transient.
	ErrInvalidAuthentication = errors.New("account: invalid authentication")
	// ErrConnectionFailed is a network or server-side failure. Retryable.
	ErrConnectionFailed = errors.New("account: connection failed")
)

// Credentials are either username/password (with an optional two-factor
// code) or an OAuth token.
type Credentials struct {
	Username string
	Password string
	Code     string
	Token    string
}

func (c Credentials) HasToken() bool {
	return strings.TrimSpace(c.Token) != ""
}

func (c Credentials) Validate() error {
	if c.HasToken() {
		return nil
	}
	if strings.TrimSpace(c.Username) == "" || c.Password == "" {
		return errors.Join(ErrInvalidAuthentication, errors.New("account: username and password or token required"))
	}
	return nil
}

// Identity is what login resolves: the channel the robot serves.
type Identity struct {
	ChannelID uint32
	Username  string
}

// JoinInfo is the session endpoint returned by the join call.
type JoinInfo struct {
	Address string
	Key     string
}

type Service interface {
	ResolveIdentity(ctx context.Context, creds Credentials) (Identity, error)
	JoinSession(ctx context.Context, channelID uint32, creds Credentials) (JoinInfo, error)
}
