// Package testutil provides a fake Axiom Web API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/axiom-client/pkg/series"
)

// Default login accepted by the mock.
const (
	Username = "operator"
	Password = "secret"
)

// MockResponse defines a canned response for a mock endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAxiom is a stateful fake of the Axiom Web API. It issues user and
// live-data tokens, rejects unknown tokens with 401 and serves tag data in
// pages of PageSize samples.
type MockAxiom struct {
	server *httptest.Server

	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	users       map[string]string
	userTokens  map[string]bool
	liveTokens  map[string]bool
	nextToken   int
	tags        []string
	nodes       map[string]map[string]any
	data        map[string][]series.Sample
	live        []map[string][]series.Sample
	aggregates  []string
	qualities   map[string]string
	timeZones   []string
	pageSize    int
	requests    map[string]int
	bodies      map[string][]map[string]any
	totalServed int
}

// NewMockAxiom starts a mock service with one user and no data.
func NewMockAxiom() *MockAxiom {
	m := &MockAxiom{
		handlers:   make(map[string]http.HandlerFunc),
		users:      map[string]string{Username: Password},
		userTokens: make(map[string]bool),
		liveTokens: make(map[string]bool),
		nodes:      make(map[string]map[string]any),
		data:       make(map[string][]series.Sample),
		aggregates: []string{"TimeAverage2", "Interpolative", "Minimum", "Maximum"},
		qualities:  map[string]string{"192": "Good", "193": "Good - Local Override", "32768": "Bad"},
		timeZones:  []string{"GMT Standard Time", "UTC", "W. Europe Standard Time"},
		pageSize:   2,
		requests:   make(map[string]int),
		bodies:     make(map[string][]map[string]any),
	}

	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// URL returns the mock API root.
func (m *MockAxiom) URL() string {
	return m.server.URL + "/api/v2"
}

// Close shuts down the mock server.
func (m *MockAxiom) Close() {
	m.server.Close()
}

// SetHandler overrides the handler for an endpoint such as "/getTagData2".
func (m *MockAxiom) SetHandler(endpoint string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[endpoint] = handler
}

// SetResponse configures a canned response for an endpoint.
func (m *MockAxiom) SetResponse(endpoint string, resp MockResponse) {
	m.SetHandler(endpoint, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// ClearHandler removes an override set with SetHandler or SetResponse.
func (m *MockAxiom) ClearHandler(endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, endpoint)
}

// SetTags sets the tags returned by /browseTags.
func (m *MockAxiom) SetTags(tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags = append([]string(nil), tags...)
}

// SetNode adds a node to the /browseNodes listing of parent.
func (m *MockAxiom) SetNode(parent, name string, hasNodes bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nodes[parent] == nil {
		m.nodes[parent] = make(map[string]any)
	}
	fullPath := name
	if parent != "" {
		fullPath = parent + "/" + name
	}
	m.nodes[parent][name] = map[string]any{
		"name":     name,
		"fullPath": fullPath,
		"hasNodes": hasNodes,
		"hasTags":  !hasNodes,
	}
}

// SetSeries stores the samples of tag, one per hour from start.
// A nil entry in values is served as JSON null.
func (m *MockAxiom) SetSeries(tag string, start time.Time, values ...*float64) {
	samples := make([]series.Sample, len(values))
	good := 192
	for i, v := range values {
		value := series.Null()
		if v != nil {
			value = series.Number(*v)
		}
		samples[i] = series.Sample{Time: start.Add(time.Duration(i) * time.Hour), Value: value, Quality: &good}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[tag] = samples
}

// SetPageSize sets how many samples of one tag a data page carries.
func (m *MockAxiom) SetPageSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageSize = n
}

// PushLive queues a dataset for the next /getLiveData poll.
func (m *MockAxiom) PushLive(ds series.Dataset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live = append(m.live, ds)
}

// RevokeAllTokens invalidates every user token, as a server restart would.
func (m *MockAxiom) RevokeAllTokens() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userTokens = make(map[string]bool)
	m.liveTokens = make(map[string]bool)
}

// RequestCount returns the number of requests made to endpoint.
func (m *MockAxiom) RequestCount(endpoint string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[endpoint]
}

// Bodies returns the decoded request bodies sent to endpoint.
func (m *MockAxiom) Bodies(endpoint string) []map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]map[string]any(nil), m.bodies[endpoint]...)
}

// ActiveUserTokens returns the number of user tokens the mock accepts.
func (m *MockAxiom) ActiveUserTokens() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.userTokens)
}

func (m *MockAxiom) serve(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.TrimPrefix(r.URL.Path, "/api/v2")

	var body map[string]any
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	m.mu.Lock()
	m.requests[endpoint]++
	m.bodies[endpoint] = append(m.bodies[endpoint], body)
	handler, overridden := m.handlers[endpoint]
	m.mu.Unlock()

	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}

	if overridden {
		handler(w, r)
		return
	}

	switch endpoint {
	case "/getUserToken":
		m.getUserToken(w, body)
		return
	case "/getTimeZones":
		m.mu.RLock()
		defer m.mu.RUnlock()
		writeJSON(w, http.StatusOK, map[string]any{"timeZones": m.timeZones})
		return
	}

	if !m.validUserToken(body) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid user token"})
		return
	}

	switch endpoint {
	case "/revokeUserToken":
		m.mu.Lock()
		delete(m.userTokens, str(body, "userToken"))
		m.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{})
	case "/browseTags":
		m.mu.RLock()
		defer m.mu.RUnlock()
		writeJSON(w, http.StatusOK, map[string]any{"tags": m.tags, "continuation": nil})
	case "/browseNodes":
		m.mu.RLock()
		defer m.mu.RUnlock()
		nodes := m.nodes[str(body, "path")]
		if nodes == nil {
			nodes = map[string]any{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
	case "/getTagProperties":
		props := make(map[string]any)
		for _, tag := range strs(body, "tags") {
			props[tag] = map[string]any{"name": tag, "units": "m3/h"}
		}
		writeJSON(w, http.StatusOK, map[string]any{"properties": props})
	case "/getAggregates":
		m.mu.RLock()
		defer m.mu.RUnlock()
		writeJSON(w, http.StatusOK, map[string]any{"aggregates": m.aggregates})
	case "/getQualities":
		m.mu.RLock()
		defer m.mu.RUnlock()
		out := make(map[string]string)
		codes, _ := body["qualities"].([]any)
		for _, q := range codes {
			code := fmt.Sprint(q)
			if desc, ok := m.qualities[code]; ok {
				out[code] = desc
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"qualities": out})
	case "/getTagData2":
		m.getTagData(w, body)
	case "/getLiveDataToken":
		m.mu.Lock()
		m.nextToken++
		token := fmt.Sprintf("live-%d", m.nextToken)
		m.liveTokens[token] = true
		m.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"liveDataToken": token})
	case "/getLiveData":
		m.getLiveData(w, body)
	case "/revokeLiveDataToken":
		m.mu.Lock()
		delete(m.liveTokens, str(body, "liveDataToken"))
		m.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown endpoint " + endpoint})
	}
}

func (m *MockAxiom) getUserToken(w http.ResponseWriter, body map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pw, ok := m.users[str(body, "username")]; !ok || pw != str(body, "password") {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	m.nextToken++
	token := fmt.Sprintf("user-%d", m.nextToken)
	m.userTokens[token] = true
	writeJSON(w, http.StatusOK, map[string]any{"userToken": token})
}

func (m *MockAxiom) validUserToken(body map[string]any) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userTokens[str(body, "userToken")]
}

// getTagData serves current values when no window is given, otherwise pages
// of at most pageSize samples per tag. The continuation is "page-N".
func (m *MockAxiom) getTagData(w http.ResponseWriter, body map[string]any) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tags := strs(body, "tags")

	if _, windowed := body["startTime"]; !windowed {
		current := make(map[string][]series.Sample)
		for _, tag := range tags {
			if samples := m.data[tag]; len(samples) > 0 {
				current[tag] = samples[len(samples)-1:]
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": current, "continuation": nil})
		return
	}

	var pages []map[string][]series.Sample
	for _, tag := range tags {
		samples := m.data[tag]
		for start := 0; start < len(samples); start += m.pageSize {
			end := min(start+m.pageSize, len(samples))
			pages = append(pages, map[string][]series.Sample{tag: samples[start:end]})
		}
	}

	page := 0
	if c, ok := body["continuation"].(string); ok {
		if _, err := fmt.Sscanf(c, "page-%d", &page); err != nil || page <= 0 || page >= len(pages) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid continuation"})
			return
		}
	}

	if len(pages) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{}, "continuation": nil})
		return
	}

	var continuation any
	if page+1 < len(pages) {
		continuation = fmt.Sprintf("page-%d", page+1)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": pages[page], "continuation": continuation})
}

func (m *MockAxiom) getLiveData(w http.ResponseWriter, body map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.liveTokens[str(body, "liveDataToken")] {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid live data token"})
		return
	}

	data := map[string][]series.Sample{}
	if len(m.live) > 0 {
		data = m.live[0]
		m.live = m.live[1:]
	}
	m.totalServed++
	writeJSON(w, http.StatusOK, map[string]any{"data": data, "continuation": fmt.Sprintf("live-cursor-%d", m.totalServed)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func str(body map[string]any, key string) string {
	s, _ := body[key].(string)
	return s
}

func strs(body map[string]any, key string) []string {
	raw, _ := body[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Float returns a pointer to v for SetSeries.
func Float(v float64) *float64 {
	return &v
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "rate limit exceeded"}`,
		Headers: map[string]string{
			"Retry-After":  retryAfter,
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
