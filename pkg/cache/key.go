package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached metadata response. The session token is never
// part of the key.
type Key struct {
	// BaseURL is the Axiom API root the response came from.
	BaseURL string

	// Endpoint is the service path (e.g. "/getTagProperties").
	Endpoint string

	// Params are the request fields that select the response.
	Params map[string]string
}

// String generates a deterministic cache key string.
// Format: axiom:host/path:endpoint:param1=val1:param2=val2
//
// Example:
//
//	axiom:plant.example.com/axiom/api/v2:getTagProperties:tag=FIC101.PV
func (k Key) String() string {
	parts := []string{"axiom"}

	if base := normalizeBase(k.BaseURL); base != "" {
		parts = append(parts, base)
	}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.Params) > 0 {
		keys := make([]string, 0, len(k.Params))
		for key := range k.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Params[key]))
		}
	}

	return strings.Join(parts, ":")
}

// normalizeBase drops the scheme and trailing slash so that the same server
// maps to one key space.
func normalizeBase(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(raw, "/")
	}
	return strings.ToLower(u.Host) + strings.TrimRight(u.Path, "/")
}
