package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/axiom-client/pkg/session"
	"github.com/Sternrassler/axiom-client/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService answers page requests from a list of JSON documents and
// records every request it receives as decoded JSON.
type fakeService struct {
	mu       sync.Mutex
	pages    []string
	failAt   int // 1-based page that fails, 0 for none
	failErr  error
	forever  bool
	requests []map[string]any
	onPage   func(page int)
}

func (f *fakeService) Post(ctx context.Context, endpoint string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}

	f.mu.Lock()
	f.requests = append(f.requests, decoded)
	page := len(f.requests)
	f.mu.Unlock()

	if f.onPage != nil {
		f.onPage(page)
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	if f.failAt == page {
		return f.failErr
	}

	var doc string
	switch {
	case f.forever:
		doc = fmt.Sprintf(`{"data":{"T1":[{"t":"2024-03-01T00:00:00Z","v":%d}]},"continuation":"c%d"}`, page, page)
	case page <= len(f.pages):
		doc = f.pages[page-1]
	default:
		return fmt.Errorf("unexpected page %d", page)
	}
	return json.Unmarshal([]byte(doc), out)
}

// staticTokens is a TokenSource backed by a mutable token.
type staticTokens struct {
	mu    sync.Mutex
	token string
}

func (s *staticTokens) RequireToken(op string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return "", &session.AuthenticationError{Op: op, Err: session.ErrNoSession}
	}
	return s.token, nil
}

func (s *staticTokens) set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// loginService hands out a new user token on every login.
type loginService struct {
	mu    sync.Mutex
	count int
}

func (l *loginService) Post(ctx context.Context, endpoint string, body, out any) error {
	if endpoint != session.EndpointGetUserToken {
		return nil
	}
	l.mu.Lock()
	l.count++
	token := fmt.Sprintf("tok-%d", l.count)
	l.mu.Unlock()
	return json.Unmarshal([]byte(fmt.Sprintf(`{"userToken":%q}`, token)), out)
}

func threePages() []string {
	return []string{
		`{"data":{"T1":[{"t":"2024-03-01T00:00:00Z","v":1},{"t":"2024-03-01T01:00:00Z","v":2}]},"continuation":"page-2"}`,
		`{"data":{"T1":[{"t":"2024-03-01T02:00:00Z","v":3},{"t":"2024-03-01T03:00:00Z","v":4}]},"continuation":{"cursor":"page-3","n":3}}`,
		`{"data":{"T1":[{"t":"2024-03-01T04:00:00Z","v":5},{"t":"2024-03-01T05:00:00Z","v":6}]},"continuation":null}`,
	}
}

func testQuery() Query {
	return Query{
		Endpoint:  EndpointTagData,
		Tags:      []string{"T1"},
		StartTime: "Now - 6 Hours",
		EndTime:   "Now",
		MaxSize:   2,
	}
}

func TestFetchAll_MergesPagesInOrder(t *testing.T) {
	svc := &fakeService{pages: threePages()}
	engine := NewEngine(svc, &staticTokens{token: "tok-1"}, DefaultConfig())

	ds, err := engine.FetchAll(context.Background(), testQuery())
	require.NoError(t, err)

	values, ok := ds.Values("T1")
	require.True(t, ok)
	require.Len(t, values, 6)
	for i, v := range values {
		assert.Equal(t, float64(i+1), v.Float, "sample %d out of order", i)
	}
	assert.Len(t, svc.requests, 3)
}

func TestFetchAll_ContinuationAndTemplate(t *testing.T) {
	svc := &fakeService{pages: threePages()}
	engine := NewEngine(svc, &staticTokens{token: "tok-1"}, DefaultConfig())

	_, err := engine.FetchAll(context.Background(), testQuery())
	require.NoError(t, err)
	require.Len(t, svc.requests, 3)

	assert.Nil(t, svc.requests[0]["continuation"], "first page must send a null continuation")
	assert.Equal(t, "page-2", svc.requests[1]["continuation"])
	assert.Equal(t, map[string]any{"cursor": "page-3", "n": float64(3)}, svc.requests[2]["continuation"])

	for i, req := range svc.requests {
		assert.Equal(t, "tok-1", req["userToken"], "page %d", i+1)
		assert.Equal(t, []any{"T1"}, req["tags"], "page %d", i+1)
		assert.Equal(t, "Now - 6 Hours", req["startTime"], "page %d", i+1)
		assert.Equal(t, "Now", req["endTime"], "page %d", i+1)
		assert.Equal(t, float64(2), req["maxSize"], "page %d", i+1)
		assert.NotContains(t, req, "aggregateName", "page %d", i+1)
		assert.NotContains(t, req, "Endpoint", "page %d", i+1)
	}
}

func TestFetchAll_AbortsOnPageError(t *testing.T) {
	pageErr := &transport.TransportError{StatusCode: 500, ErrorClass: transport.ErrorClassServer, Message: "boom"}
	svc := &fakeService{pages: threePages(), failAt: 2, failErr: pageErr}
	engine := NewEngine(svc, &staticTokens{token: "tok-1"}, DefaultConfig())

	ds, err := engine.FetchAll(context.Background(), testQuery())

	require.Error(t, err)
	assert.Nil(t, ds, "no partial dataset may be returned")

	var te *transport.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 500, te.StatusCode)
	assert.Len(t, svc.requests, 2, "no page may be requested after a failure")
}

func TestFetchAll_PageLimit(t *testing.T) {
	svc := &fakeService{forever: true}
	engine := NewEngine(svc, &staticTokens{token: "tok-1"}, Config{MaxPages: 5})

	done := make(chan struct{})
	var err error
	go func() {
		_, err = engine.FetchAll(context.Background(), testQuery())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("FetchAll did not terminate on a never-ending service")
	}

	require.ErrorIs(t, err, ErrPaginationExhausted)
	var pe *PaginationExhaustedError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 5, pe.Pages)
	assert.Len(t, svc.requests, 5)
}

func TestFetchAll_RequiresToken(t *testing.T) {
	svc := &fakeService{pages: threePages()}
	engine := NewEngine(svc, &staticTokens{}, DefaultConfig())

	_, err := engine.FetchAll(context.Background(), testQuery())

	require.ErrorIs(t, err, session.ErrNoSession)
	assert.True(t, session.IsAuthError(err))
	assert.Empty(t, svc.requests, "no request may be sent without a token")
}

func TestFetchAll_RevokeMidFetch(t *testing.T) {
	tokens := &staticTokens{token: "tok-1"}
	svc := &fakeService{pages: threePages()}
	svc.onPage = func(page int) {
		if page == 1 {
			tokens.set("")
		}
	}
	engine := NewEngine(svc, tokens, DefaultConfig())

	ds, err := engine.FetchAll(context.Background(), testQuery())

	assert.Nil(t, ds)
	require.ErrorIs(t, err, session.ErrNoSession)
	assert.Len(t, svc.requests, 1)
}

func TestFetchAll_TokenRotationMidFetch(t *testing.T) {
	tokens := &staticTokens{token: "tok-1"}
	svc := &fakeService{pages: threePages()}
	svc.onPage = func(page int) {
		if page == 1 {
			tokens.set("tok-2")
		}
	}
	engine := NewEngine(svc, tokens, DefaultConfig())

	ds, err := engine.FetchAll(context.Background(), testQuery())

	assert.Nil(t, ds)
	var ae *session.AuthenticationError
	require.ErrorAs(t, err, &ae)
	require.ErrorIs(t, err, session.ErrSessionChanged)
	require.Len(t, svc.requests, 1, "no page may be sent under the replacement token")
	assert.Equal(t, "tok-1", svc.requests[0]["userToken"])
}

func TestFetchAll_AcquireMidFetchWithManager(t *testing.T) {
	mgr := session.NewManager(&loginService{})
	ctx := context.Background()
	creds := session.Credentials{Username: "operator", Password: "secret"}
	_, err := mgr.Acquire(ctx, creds, session.Options{})
	require.NoError(t, err)

	svc := &fakeService{pages: threePages()}
	svc.onPage = func(page int) {
		if page == 1 {
			_, err := mgr.Acquire(ctx, creds, session.Options{})
			require.NoError(t, err)
		}
	}
	engine := NewEngine(svc, mgr, DefaultConfig())

	ds, err := engine.FetchAll(ctx, testQuery())

	assert.Nil(t, ds)
	require.ErrorIs(t, err, session.ErrSessionChanged)
	assert.Len(t, svc.requests, 1)
	assert.Equal(t, session.StateActive, mgr.State())
}

func TestFetchAll_ServiceRejectsToken(t *testing.T) {
	authErr := &transport.TransportError{StatusCode: 401, ErrorClass: transport.ErrorClassAuth}
	svc := &fakeService{pages: threePages(), failAt: 2, failErr: authErr}
	engine := NewEngine(svc, &staticTokens{token: "tok-1"}, DefaultConfig())

	_, err := engine.FetchAll(context.Background(), testQuery())

	var ae *session.AuthenticationError
	require.ErrorAs(t, err, &ae)
	var te *transport.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 401, te.StatusCode)
}

func TestFetchAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := &fakeService{pages: threePages()}
	svc.onPage = func(page int) {
		if page == 2 {
			cancel()
		}
	}
	engine := NewEngine(svc, &staticTokens{token: "tok-1"}, DefaultConfig())

	ds, err := engine.FetchAll(ctx, testQuery())

	assert.Nil(t, ds)
	var ce *CancellationError
	require.ErrorAs(t, err, &ce)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, ce.Pages)
	assert.Len(t, svc.requests, 2, "no page may be requested after cancellation")
}

func TestFetchAll_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := &fakeService{pages: threePages()}
	engine := NewEngine(svc, &staticTokens{token: "tok-1"}, DefaultConfig())

	_, err := engine.FetchAll(ctx, testQuery())

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, svc.requests)
}

func TestFetchAll_PreservesNullValues(t *testing.T) {
	svc := &fakeService{pages: []string{
		`{"data":{"T1":[{"t":"2024-03-01T00:00:00Z","v":1},{"t":"2024-03-01T01:00:00Z","v":null,"q":0}]},"continuation":null}`,
	}}
	engine := NewEngine(svc, &staticTokens{token: "tok-1"}, DefaultConfig())

	ds, err := engine.FetchAll(context.Background(), testQuery())
	require.NoError(t, err)

	values, _ := ds.Values("T1")
	require.Len(t, values, 2)
	assert.False(t, values[0].Missing)
	assert.True(t, values[1].Missing, "null must stay an explicit missing marker")
}

func TestFetchAll_MultipleTagsAcrossPages(t *testing.T) {
	svc := &fakeService{pages: []string{
		`{"data":{"A":[{"t":"2024-03-01T00:00:00Z","v":1}]},"continuation":"x"}`,
		`{"data":{"A":[{"t":"2024-03-01T01:00:00Z","v":2}],"B":[{"t":"2024-03-01T00:00:00Z","v":10}]},"continuation":""}`,
	}}
	engine := NewEngine(svc, &staticTokens{token: "tok-1"}, DefaultConfig())

	q := testQuery()
	q.Tags = []string{"A", "B"}
	ds, err := engine.FetchAll(context.Background(), q)
	require.NoError(t, err)

	assert.Len(t, ds["A"], 2)
	assert.Len(t, ds["B"], 1)
}

func TestIsComplete(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", true},
		{"null", true},
		{` null `, true},
		{`""`, true},
		{`"abc"`, false},
		{`{"k":1}`, false},
		{`0`, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsComplete(json.RawMessage(tt.in)), "IsComplete(%q)", tt.in)
	}
}

func TestNewEngine_DefaultsMaxPages(t *testing.T) {
	engine := NewEngine(&fakeService{}, &staticTokens{}, Config{})
	assert.Equal(t, DefaultConfig().MaxPages, engine.config.MaxPages)
}

func TestPaginationExhaustedError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &PaginationExhaustedError{Endpoint: EndpointTagData, Pages: 3})
	assert.True(t, errors.Is(err, ErrPaginationExhausted))
	assert.Contains(t, err.Error(), "after 3 pages")
}
