// Package poller implements the incremental series poller.
//
// The poller:
//   - Fetches only the points appended since its cursor (the primary
//     series length) on a fixed interval
//   - Merges each returned series at its own offset, keyed by name
//   - Hands a snapshot to the chart after every merge
//   - Stops itself after too many consecutive empty responses or
//     transport errors
//
// At most one fetch is in flight at a time.
package poller
