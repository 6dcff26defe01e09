package client

import (
	"context"
	"errors"

	"github.com/Sternrassler/axiom-client/pkg/aggregate"
	"github.com/Sternrassler/axiom-client/pkg/pagination"
	"github.com/Sternrassler/axiom-client/pkg/series"
)

// Query defaults applied to raw and processed data requests.
const (
	DefaultStartTime         = "Now - 24 Hours"
	DefaultEndTime           = "Now"
	DefaultMaxSize           = 100000
	DefaultAggregateName     = "TimeAverage2"
	DefaultAggregateInterval = "1 Hour"
)

// ErrEmptySelection is returned by the derived metrics when neither the
// query nor the default selection names a tag. Data queries report the same
// condition as a nil dataset with a nil error.
var ErrEmptySelection = errors.New("no tags selected")

// DataQuery describes a historical data request. Zero fields take the
// package defaults; empty Tags uses the default tag selection.
type DataQuery struct {
	Tags              []string
	StartTime         string
	EndTime           string
	MaxSize           int
	AggregateName     string
	AggregateInterval string
}

func (q DataQuery) raw() pagination.Query {
	pq := pagination.Query{
		Endpoint:  pagination.EndpointTagData,
		Tags:      q.Tags,
		StartTime: q.StartTime,
		EndTime:   q.EndTime,
		MaxSize:   q.MaxSize,
	}
	if pq.StartTime == "" {
		pq.StartTime = DefaultStartTime
	}
	if pq.EndTime == "" {
		pq.EndTime = DefaultEndTime
	}
	if pq.MaxSize <= 0 {
		pq.MaxSize = DefaultMaxSize
	}
	return pq
}

func (q DataQuery) processed() pagination.Query {
	pq := q.raw()
	pq.AggregateName = q.AggregateName
	pq.AggregateInterval = q.AggregateInterval
	if pq.AggregateName == "" {
		pq.AggregateName = DefaultAggregateName
	}
	if pq.AggregateInterval == "" {
		pq.AggregateInterval = DefaultAggregateInterval
	}
	return pq
}

// GetCurrentValues returns the current value of each tag. Empty tags uses
// the default selection; an empty selection returns a nil dataset.
func (c *Client) GetCurrentValues(ctx context.Context, tags []string) (series.Dataset, error) {
	return c.fetch(ctx, "get_current_values", pagination.Query{
		Endpoint: pagination.EndpointTagData,
		Tags:     tags,
	})
}

// LatestValues returns the first current value reported for each tag.
// Tags with no samples are left out.
func (c *Client) LatestValues(ctx context.Context, tags []string) (map[string]series.Value, error) {
	ds, err := c.GetCurrentValues(ctx, tags)
	if err != nil || ds == nil {
		return nil, err
	}

	latest := make(map[string]series.Value, len(ds))
	for tag, samples := range ds {
		if len(samples) > 0 {
			latest[tag] = samples[0].Value
		}
	}
	return latest, nil
}

// GetRawData returns every stored sample in the query window.
func (c *Client) GetRawData(ctx context.Context, q DataQuery) (series.Dataset, error) {
	return c.fetch(ctx, "get_raw_data", q.raw())
}

// GetProcessedData returns aggregated samples in the query window.
func (c *Client) GetProcessedData(ctx context.Context, q DataQuery) (series.Dataset, error) {
	return c.fetch(ctx, "get_processed_data", q.processed())
}

// Totalizer fetches processed data and totalizes the first tag of the
// selection over the query's aggregate interval.
func (c *Client) Totalizer(ctx context.Context, q DataQuery) (int64, error) {
	ds, tag, interval, err := c.fetchForMetric(ctx, "totalizer", q)
	if err != nil {
		return 0, err
	}
	return aggregate.Totalize(ds, tag, interval)
}

// RunHours fetches processed data and returns the hours the first tag of
// the selection spent strictly above threshold.
func (c *Client) RunHours(ctx context.Context, q DataQuery, threshold float64) (float64, error) {
	ds, tag, interval, err := c.fetchForMetric(ctx, "run_hours", q)
	if err != nil {
		return 0, err
	}
	return aggregate.RunTimeAboveThreshold(ds, tag, interval, threshold)
}

// fetchForMetric validates the interval before any request is sent, then
// runs the processed query.
func (c *Client) fetchForMetric(ctx context.Context, operation string, q DataQuery) (series.Dataset, string, string, error) {
	pq := q.processed()
	if _, err := aggregate.ParseInterval(pq.AggregateInterval); err != nil {
		record(operation, err)
		return nil, "", "", err
	}

	if _, err := c.session.RequireToken(operation); err != nil {
		record(operation, err)
		return nil, "", "", err
	}

	pq.Tags = c.session.ResolveTags(pq.Tags)
	if len(pq.Tags) == 0 {
		record(operation, ErrEmptySelection)
		return nil, "", "", ErrEmptySelection
	}

	ds, err := c.fetch(ctx, operation, pq)
	if err != nil {
		return nil, "", "", err
	}
	return ds, pq.Tags[0], pq.AggregateInterval, nil
}

// fetch checks the session, resolves the tag selection and runs q to
// completion. An empty selection sends nothing and returns nil, nil.
func (c *Client) fetch(ctx context.Context, operation string, q pagination.Query) (series.Dataset, error) {
	if _, err := c.session.RequireToken(operation); err != nil {
		record(operation, err)
		return nil, err
	}

	q.Tags = c.session.ResolveTags(q.Tags)
	if len(q.Tags) == 0 {
		record(operation, nil)
		c.logger.Debug().Str("operation", operation).Msg("No tags selected - query skipped")
		return nil, nil
	}

	ds, err := c.engine.FetchAll(ctx, q)
	record(operation, err)
	return ds, err
}
