// Package session owns the Axiom user token lifecycle and the default tag
// selection used by data queries.
//
// A Manager holds at most one active token. Acquire and Revoke are
// serialized against each other; CurrentToken and DefaultTags never block
// on network I/O. Callers that need the token must read it through
// CurrentToken immediately before each request instead of caching it, so
// that a concurrent Revoke fails the next request rather than letting it
// run with a token the caller believes is gone.
//
// Acquire and Revoke invalidate every in-flight paginated fetch or live
// feed bound to the previous token; their next request fails with an
// AuthenticationError instead of continuing under the new token.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Sternrassler/axiom-client/pkg/logging"
	"github.com/Sternrassler/axiom-client/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Service endpoints used by the manager.
const (
	EndpointGetUserToken    = "/getUserToken"
	EndpointRevokeUserToken = "/revokeUserToken"
)

// Defaults for the token request.
const (
	DefaultApplication = "Web API"
	DefaultTimeZone    = "GMT Standard Time"
)

var (
	sessionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "axiom_session_active",
		Help: "Number of session managers currently holding an active user token",
	})

	sessionOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "axiom_session_operations_total",
		Help: "Session lifecycle operations by operation and result",
	}, []string{"operation", "result"})
)

// State is the lifecycle state of the session token.
type State int

const (
	// StateAbsent means no token was ever acquired.
	StateAbsent State = iota
	// StateActive means a token is held.
	StateActive
	// StateRevoked means the last token was revoked.
	StateRevoked
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateActive:
		return "active"
	case StateRevoked:
		return "revoked"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Credentials identify the caller to the service.
type Credentials struct {
	Username string
	Password string
}

// Options tune the token request.
type Options struct {
	// Application name reported to the service (default: "Web API").
	Application string

	// TimeZone used by the service for relative times (default: "GMT Standard Time").
	TimeZone string
}

type userTokenRequest struct {
	Application string `json:"application"`
	TimeZone    string `json:"timeZone"`
	Username    string `json:"username"`
	Password    string `json:"password"`
}

type userTokenResponse struct {
	UserToken  string `json:"userToken"`
	StatusCode string `json:"statusCode,omitempty"`
}

type revokeRequest struct {
	UserToken string `json:"userToken"`
}

// Manager owns the session token and the default tag selection.
type Manager struct {
	poster transport.Poster
	logger zerolog.Logger

	// lifecycle serializes Acquire and Revoke, including their network calls.
	lifecycle sync.Mutex

	mu    sync.RWMutex
	token string
	state State
	tags  []string
}

// NewManager creates a session manager sending requests through poster.
func NewManager(poster transport.Poster) *Manager {
	return &Manager{
		poster: poster,
		logger: logging.NewLogger(logging.ComponentSession),
	}
}

// Acquire authenticates with the service and stores the returned token as
// the only active token. A previously active token is replaced atomically
// and then revoked remotely on a best-effort basis. On failure the manager
// state is unchanged.
func (m *Manager) Acquire(ctx context.Context, creds Credentials, opts Options) (string, error) {
	if creds.Username == "" {
		return "", &AuthenticationError{Op: "acquire", Err: ErrMissingCredentials}
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	req := userTokenRequest{
		Application: opts.Application,
		TimeZone:    opts.TimeZone,
		Username:    creds.Username,
		Password:    creds.Password,
	}
	if req.Application == "" {
		req.Application = DefaultApplication
	}
	if req.TimeZone == "" {
		req.TimeZone = DefaultTimeZone
	}

	var resp userTokenResponse
	if err := m.poster.Post(ctx, EndpointGetUserToken, req, &resp); err != nil {
		sessionOpsTotal.WithLabelValues("acquire", "error").Inc()
		m.logger.Warn().Err(err).Str("username", creds.Username).Msg("User token request failed")
		return "", &AuthenticationError{Op: "acquire", Err: err}
	}
	if resp.UserToken == "" {
		sessionOpsTotal.WithLabelValues("acquire", "error").Inc()
		return "", &AuthenticationError{Op: "acquire", Err: ErrEmptyToken}
	}

	m.mu.Lock()
	previous := m.token
	if m.state != StateActive {
		sessionActive.Inc()
	}
	m.token = resp.UserToken
	m.state = StateActive
	m.mu.Unlock()

	sessionOpsTotal.WithLabelValues("acquire", "ok").Inc()
	m.logger.Info().Str("username", creds.Username).Msg("Session acquired")

	if previous != "" && previous != resp.UserToken {
		if err := m.revokeRemote(ctx, previous); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to revoke replaced user token")
		}
	}

	return resp.UserToken, nil
}

// Revoke invalidates the active token. It is a no-op when no token is
// active. Local state is cleared before the remote call so it never
// retains a token the caller believes is gone; a remote failure is
// returned wrapped but does not restore the token.
func (m *Manager) Revoke(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	token := m.token
	if m.state != StateActive {
		m.mu.Unlock()
		return nil
	}
	m.token = ""
	m.state = StateRevoked
	m.mu.Unlock()
	sessionActive.Dec()

	if err := m.revokeRemote(ctx, token); err != nil {
		sessionOpsTotal.WithLabelValues("revoke", "remote_error").Inc()
		m.logger.Warn().Err(err).Msg("Remote token revocation failed, local token cleared")
		return fmt.Errorf("revoke user token: %w", err)
	}

	sessionOpsTotal.WithLabelValues("revoke", "ok").Inc()
	m.logger.Info().Msg("Session revoked")
	return nil
}

func (m *Manager) revokeRemote(ctx context.Context, token string) error {
	return m.poster.Post(ctx, EndpointRevokeUserToken, revokeRequest{UserToken: token}, nil)
}

// CurrentToken returns the active token, and false when none is active.
func (m *Manager) CurrentToken() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.state == StateActive
}

// RequireToken returns the active token or an *AuthenticationError
// wrapping ErrNoSession.
func (m *Manager) RequireToken(op string) (string, error) {
	token, ok := m.CurrentToken()
	if !ok {
		return "", &AuthenticationError{Op: op, Err: ErrNoSession}
	}
	return token, nil
}

// State returns the lifecycle state of the token.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// SetDefaultTags replaces the default tag selection.
func (m *Manager) SetDefaultTags(tags []string) {
	m.mu.Lock()
	m.tags = slices.Clone(tags)
	m.mu.Unlock()
}

// DefaultTags returns a copy of the default tag selection.
func (m *Manager) DefaultTags() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.tags)
}

// ResolveTags returns explicit when non-empty, otherwise the default
// selection.
func (m *Manager) ResolveTags(explicit []string) []string {
	if len(explicit) > 0 {
		return slices.Clone(explicit)
	}
	return m.DefaultTags()
}

// IsAuthError reports whether err is an authentication failure, either
// raised locally or a 401/403 from the service.
func IsAuthError(err error) bool {
	var ae *AuthenticationError
	return errors.As(err, &ae) || transport.IsAuth(err)
}
