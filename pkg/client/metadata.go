package client

import (
	"context"
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	"github.com/Sternrassler/axiom-client/pkg/cache"
	"github.com/Sternrassler/axiom-client/pkg/pagination"
	"github.com/Sternrassler/axiom-client/pkg/session"
)

// Metadata endpoints.
const (
	EndpointGetTimeZones     = "/getTimeZones"
	EndpointBrowseTags       = "/browseTags"
	EndpointBrowseNodes      = "/browseNodes"
	EndpointGetTagProperties = "/getTagProperties"
	EndpointGetAggregates    = "/getAggregates"
	EndpointGetQualities     = "/getQualities"
)

// DefaultQualities are the quality codes requested when none are given.
var DefaultQualities = []int{192, 193, 32768}

// BrowseOptions select the part of the tag tree to list.
type BrowseOptions struct {
	// Path is the node to start from; empty means the root.
	Path string

	// Shallow lists only the tags directly under Path.
	Shallow bool
}

// Node is one entry of the node tree.
type Node struct {
	Name     string `json:"name"`
	FullPath string `json:"fullPath"`
	HasNodes bool   `json:"hasNodes"`
	HasTags  bool   `json:"hasTags"`
}

// TagProperties are the service-defined properties of one tag.
type TagProperties map[string]any

type userTokenBody struct {
	UserToken string `json:"userToken"`
}

type browseTagsRequest struct {
	UserToken    string          `json:"userToken"`
	Deep         bool            `json:"deep"`
	Path         string          `json:"path"`
	Continuation json.RawMessage `json:"continuation,omitempty"`
}

type browseTagsResponse struct {
	Tags         []string        `json:"tags"`
	Continuation json.RawMessage `json:"continuation"`
}

type browseNodesRequest struct {
	UserToken string `json:"userToken"`
	Path      string `json:"path"`
}

type browseNodesResponse struct {
	Nodes map[string]Node `json:"nodes"`
}

type tagPropertiesRequest struct {
	UserToken string   `json:"userToken"`
	Tags      []string `json:"tags"`
}

type tagPropertiesResponse struct {
	Properties map[string]TagProperties `json:"properties"`
}

type aggregatesResponse struct {
	Aggregates []string `json:"aggregates"`
}

type qualitiesRequest struct {
	UserToken string `json:"userToken"`
	Qualities []int  `json:"qualities"`
}

type qualitiesResponse struct {
	Qualities map[string]string `json:"qualities"`
}

type timeZonesResponse struct {
	TimeZones []string `json:"timeZones"`
}

// BrowseTags lists the tags under opts.Path and makes them the default tag
// selection. Follow-up pages are requested until the service reports no
// continuation.
func (c *Client) BrowseTags(ctx context.Context, opts BrowseOptions) ([]string, error) {
	const op = "browse tags"

	var (
		tags         []string
		continuation json.RawMessage
		bound        string
	)
	for page := 1; ; page++ {
		if page > c.engine.MaxPages() {
			record("browse_tags", pagination.ErrPaginationExhausted)
			return nil, &pagination.PaginationExhaustedError{Endpoint: EndpointBrowseTags, Pages: c.engine.MaxPages()}
		}

		token, err := c.session.RequireToken(op)
		if err != nil {
			record("browse_tags", err)
			return nil, err
		}
		if bound == "" {
			bound = token
		} else if token != bound {
			err := &session.AuthenticationError{Op: op, Err: session.ErrSessionChanged}
			record("browse_tags", err)
			return nil, err
		}

		req := browseTagsRequest{
			UserToken:    token,
			Deep:         !opts.Shallow,
			Path:         opts.Path,
			Continuation: continuation,
		}
		var resp browseTagsResponse
		if err := c.transport.Post(ctx, EndpointBrowseTags, req, &resp); err != nil {
			record("browse_tags", err)
			return nil, wrapAuth(op, err)
		}

		tags = append(tags, resp.Tags...)
		if pagination.IsComplete(resp.Continuation) {
			break
		}
		continuation = resp.Continuation
	}

	c.session.SetDefaultTags(tags)
	record("browse_tags", nil)
	c.logger.Info().Str("path", opts.Path).Int("tags", len(tags)).Msg("Tag selection updated")
	return slices.Clone(tags), nil
}

// BrowseNodes lists the child nodes of path. Empty path is the root.
func (c *Client) BrowseNodes(ctx context.Context, path string) (map[string]Node, error) {
	const op = "browse nodes"

	token, err := c.session.RequireToken(op)
	if err != nil {
		record("browse_nodes", err)
		return nil, err
	}

	var resp browseNodesResponse
	err = c.transport.Post(ctx, EndpointBrowseNodes, browseNodesRequest{UserToken: token, Path: path}, &resp)
	record("browse_nodes", err)
	if err != nil {
		return nil, wrapAuth(op, err)
	}
	if resp.Nodes == nil {
		resp.Nodes = map[string]Node{}
	}
	return resp.Nodes, nil
}

// GetTagProperties returns the properties of tags, or of the default
// selection when tags is empty. An empty selection returns nil.
func (c *Client) GetTagProperties(ctx context.Context, tags []string) (map[string]TagProperties, error) {
	const op = "get tag properties"

	token, err := c.session.RequireToken(op)
	if err != nil {
		record("get_tag_properties", err)
		return nil, err
	}

	tags = c.session.ResolveTags(tags)
	if len(tags) == 0 {
		c.logger.Debug().Msg("No tags selected - skipping tag properties request")
		return nil, nil
	}

	params := map[string]string{"tags": tagsKey(tags)}
	var resp tagPropertiesResponse
	err = c.metadata(ctx, EndpointGetTagProperties, params, tagPropertiesRequest{UserToken: token, Tags: tags}, &resp)
	record("get_tag_properties", err)
	if err != nil {
		return nil, wrapAuth(op, err)
	}
	return resp.Properties, nil
}

// GetAggregates lists the aggregate functions the service supports.
func (c *Client) GetAggregates(ctx context.Context) ([]string, error) {
	const op = "get aggregates"

	token, err := c.session.RequireToken(op)
	if err != nil {
		record("get_aggregates", err)
		return nil, err
	}

	var resp aggregatesResponse
	err = c.metadata(ctx, EndpointGetAggregates, nil, userTokenBody{UserToken: token}, &resp)
	record("get_aggregates", err)
	if err != nil {
		return nil, wrapAuth(op, err)
	}
	return resp.Aggregates, nil
}

// GetQualities describes quality codes. A nil slice asks for
// DefaultQualities.
func (c *Client) GetQualities(ctx context.Context, qualities []int) (map[string]string, error) {
	const op = "get qualities"

	token, err := c.session.RequireToken(op)
	if err != nil {
		record("get_qualities", err)
		return nil, err
	}

	if len(qualities) == 0 {
		qualities = DefaultQualities
	}
	codes := make([]string, len(qualities))
	for i, q := range qualities {
		codes[i] = strconv.Itoa(q)
	}

	params := map[string]string{"qualities": strings.Join(codes, ",")}
	var resp qualitiesResponse
	err = c.metadata(ctx, EndpointGetQualities, params, qualitiesRequest{UserToken: token, Qualities: qualities}, &resp)
	record("get_qualities", err)
	if err != nil {
		return nil, wrapAuth(op, err)
	}
	return resp.Qualities, nil
}

// GetTimeZones lists the time zone names accepted at login. It needs no
// session.
func (c *Client) GetTimeZones(ctx context.Context) ([]string, error) {
	var resp timeZonesResponse
	err := c.metadata(ctx, EndpointGetTimeZones, nil, nil, &resp)
	record("get_time_zones", err)
	if err != nil {
		return nil, wrapAuth("get time zones", err)
	}
	return resp.TimeZones, nil
}

// tagsKey encodes a tag list for a cache key. JSON keeps ["A,B"] and
// ["A","B"] apart.
func tagsKey(tags []string) string {
	b, _ := json.Marshal(tags)
	return string(b)
}

// metadata posts body to endpoint through the metadata cache. The session
// token is never part of the cache key.
func (c *Client) metadata(ctx context.Context, endpoint string, params map[string]string, body, out any) error {
	if c.cache == nil {
		return c.transport.Post(ctx, endpoint, body, out)
	}

	key := cache.Key{
		BaseURL:  c.transport.BaseURL(),
		Endpoint: endpoint,
		Params:   params,
	}
	return c.cache.Remember(ctx, key, out, func(ctx context.Context) (any, error) {
		if err := c.transport.Post(ctx, endpoint, body, out); err != nil {
			return nil, err
		}
		return out, nil
	})
}
