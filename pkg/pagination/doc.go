// Package pagination drives continuation-paginated Axiom queries.
//
// The service answers a data query with one fragment and a continuation
// token. The Engine re-issues the same query with that token until the
// service returns a null continuation, merging every fragment into one
// series.Dataset. Pages are strictly sequential.
//
// Example usage:
//
//	engine := pagination.NewEngine(transportClient, sessions, pagination.DefaultConfig())
//	ds, err := engine.FetchAll(ctx, pagination.Query{
//		Endpoint:  pagination.EndpointTagData,
//		Tags:      []string{"Plant.Boiler.Temp"},
//		StartTime: "Now - 24 Hours",
//		EndTime:   "Now",
//	})
//
// FetchAll:
//   - re-reads the session token before every page
//   - stops with PaginationExhaustedError after Config.MaxPages pages
//   - returns the whole dataset or an error, never a partial result
//   - keeps null sample values as series.Value{Missing: true}
package pagination
