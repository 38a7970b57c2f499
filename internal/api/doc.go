// Package api provides the client for the series data source.
//
// The data source answers GET <dataURL>?start=N with a JSON array of
// {"name": ..., "data": [{"x": ..., "y": ...}, ...]} entries, one per series,
// holding only the points at index >= N of that series. Series that are
// behind the primary cursor are requested with from=<name>:<offset>.
package api
