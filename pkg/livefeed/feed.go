// Package livefeed manages the Axiom live-data token and polls the live
// feed it opens.
//
// A Feed is a small state machine {absent, active, revoked} layered on the
// session token it was opened with. If the session token changes or is
// revoked, the feed is treated as revoked and must be re-acquired.
package livefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Sternrassler/axiom-client/pkg/logging"
	"github.com/Sternrassler/axiom-client/pkg/series"
	"github.com/Sternrassler/axiom-client/pkg/session"
	"github.com/Sternrassler/axiom-client/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Service endpoints used by the feed.
const (
	EndpointGetLiveDataToken    = "/getLiveDataToken"
	EndpointGetLiveData         = "/getLiveData"
	EndpointRevokeLiveDataToken = "/revokeLiveDataToken"
)

// DefaultMode streams every value change.
const DefaultMode = "AllValues"

var (
	// ErrNotActive is returned when polling a feed that has no live-data token.
	ErrNotActive = errors.New("live feed is not active")

	// ErrNoTags is returned when a feed is opened without tags.
	ErrNoTags = errors.New("live feed needs at least one tag")
)

var (
	pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "axiom_livefeed_polls_total",
		Help: "Live feed polls by result",
	}, []string{"result"})

	samplesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "axiom_livefeed_samples_total",
		Help: "Samples received from the live feed",
	})
)

// State is the lifecycle state of the live-data token.
type State int

const (
	// StateAbsent means no live-data token was ever acquired.
	StateAbsent State = iota
	// StateActive means the feed holds a live-data token.
	StateActive
	// StateRevoked means the token was revoked or invalidated by a session change.
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

// Options tune the live-data token request.
type Options struct {
	// Tags to subscribe to. Required.
	Tags []string

	// Mode is the service streaming mode (default: "AllValues").
	Mode string
}

// TokenSource supplies the session token.
type TokenSource interface {
	RequireToken(op string) (string, error)
}

type liveTokenRequest struct {
	UserToken      string   `json:"userToken"`
	Tags           []string `json:"tags"`
	Mode           string   `json:"mode"`
	IncludeQuality bool     `json:"includeQuality"`
}

type liveTokenResponse struct {
	LiveDataToken string `json:"liveDataToken"`
}

type liveDataRequest struct {
	UserToken     string          `json:"userToken"`
	LiveDataToken string          `json:"liveDataToken"`
	Continuation  json.RawMessage `json:"continuation"`
}

type liveDataResponse struct {
	Data         series.Dataset  `json:"data"`
	Continuation json.RawMessage `json:"continuation"`
}

type revokeLiveRequest struct {
	UserToken     string `json:"userToken"`
	LiveDataToken string `json:"liveDataToken"`
}

// Feed owns one live-data token.
type Feed struct {
	poster transport.Poster
	tokens TokenSource
	logger zerolog.Logger

	// lifecycle serializes Acquire, Poll and Revoke.
	lifecycle sync.Mutex

	mu           sync.RWMutex
	state        State
	token        string
	sessionToken string
	tags         []string
	continuation json.RawMessage
}

// New creates an inactive feed.
func New(poster transport.Poster, tokens TokenSource) *Feed {
	return &Feed{
		poster: poster,
		tokens: tokens,
		logger: logging.NewLogger(logging.ComponentLiveFeed),
	}
}

// Acquire opens the feed for opts.Tags. An already active feed is revoked
// first.
func (f *Feed) Acquire(ctx context.Context, opts Options) (string, error) {
	if len(opts.Tags) == 0 {
		return "", ErrNoTags
	}

	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()

	userToken, err := f.tokens.RequireToken("acquire live feed")
	if err != nil {
		return "", err
	}

	if f.State() == StateActive {
		if err := f.revokeLocked(ctx); err != nil {
			f.logger.Warn().Err(err).Msg("Failed to revoke previous live-data token")
		}
	}

	mode := opts.Mode
	if mode == "" {
		mode = DefaultMode
	}

	req := liveTokenRequest{
		UserToken:      userToken,
		Tags:           opts.Tags,
		Mode:           mode,
		IncludeQuality: true,
	}

	var resp liveTokenResponse
	if err := f.poster.Post(ctx, EndpointGetLiveDataToken, req, &resp); err != nil {
		return "", wrapAuth("acquire live feed", err)
	}
	if resp.LiveDataToken == "" {
		return "", fmt.Errorf("acquire live feed: service returned an empty live-data token")
	}

	f.mu.Lock()
	f.state = StateActive
	f.token = resp.LiveDataToken
	f.sessionToken = userToken
	f.tags = slices.Clone(opts.Tags)
	f.continuation = nil
	f.mu.Unlock()

	f.logger.Info().Int("tags", len(opts.Tags)).Str("mode", mode).Msg("Live feed opened")
	return resp.LiveDataToken, nil
}

// Poll fetches the values published since the previous poll.
func (f *Feed) Poll(ctx context.Context) (series.Dataset, error) {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()

	userToken, err := f.checkSession()
	if err != nil {
		pollsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	f.mu.RLock()
	req := liveDataRequest{
		UserToken:     userToken,
		LiveDataToken: f.token,
		Continuation:  f.continuation,
	}
	f.mu.RUnlock()

	var resp liveDataResponse
	if err := f.poster.Post(ctx, EndpointGetLiveData, req, &resp); err != nil {
		pollsTotal.WithLabelValues("error").Inc()
		return nil, wrapAuth("poll live feed", err)
	}

	f.mu.Lock()
	f.continuation = resp.Continuation
	f.mu.Unlock()

	if resp.Data == nil {
		resp.Data = series.Dataset{}
	}
	pollsTotal.WithLabelValues("ok").Inc()
	samplesReceived.Add(float64(resp.Data.Len()))
	return resp.Data, nil
}

// checkSession returns the session token if the feed is still bound to it.
// A feed whose session changed moves to StateRevoked.
func (f *Feed) checkSession() (string, error) {
	f.mu.RLock()
	state, bound := f.state, f.sessionToken
	f.mu.RUnlock()

	if state != StateActive {
		return "", ErrNotActive
	}

	userToken, err := f.tokens.RequireToken("poll live feed")
	if err == nil && userToken == bound {
		return userToken, nil
	}

	f.clear()
	f.logger.Warn().Msg("Session changed - live feed invalidated")
	if err != nil {
		return "", err
	}
	return "", &session.AuthenticationError{Op: "poll live feed", Err: session.ErrSessionChanged}
}

// Revoke closes the feed. It is a no-op for an inactive feed. Local state
// is always cleared, even when the remote call fails.
func (f *Feed) Revoke(ctx context.Context) error {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()
	return f.revokeLocked(ctx)
}

func (f *Feed) revokeLocked(ctx context.Context) error {
	f.mu.RLock()
	state, token, bound := f.state, f.token, f.sessionToken
	f.mu.RUnlock()

	if state != StateActive {
		return nil
	}
	f.clear()

	userToken, ok := "", false
	if current, err := f.tokens.RequireToken("revoke live feed"); err == nil && current == bound {
		userToken, ok = current, true
	}
	if !ok {
		// The session is gone; the service already dropped the feed.
		f.logger.Debug().Msg("Live feed cleared locally, session no longer active")
		return nil
	}

	req := revokeLiveRequest{UserToken: userToken, LiveDataToken: token}
	if err := f.poster.Post(ctx, EndpointRevokeLiveDataToken, req, nil); err != nil {
		f.logger.Warn().Err(err).Msg("Remote live-data token revocation failed, local token cleared")
		return fmt.Errorf("revoke live feed: %w", err)
	}

	f.logger.Info().Msg("Live feed revoked")
	return nil
}

func (f *Feed) clear() {
	f.mu.Lock()
	f.state = StateRevoked
	f.token = ""
	f.sessionToken = ""
	f.continuation = nil
	f.mu.Unlock()
}

// State returns the lifecycle state of the live-data token.
func (f *Feed) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Token returns the live-data token, and false when the feed is not active.
func (f *Feed) Token() (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.token, f.state == StateActive
}

// Tags returns the tags of the active feed.
func (f *Feed) Tags() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.tags)
}

func wrapAuth(op string, err error) error {
	if transport.IsAuth(err) {
		return &session.AuthenticationError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
