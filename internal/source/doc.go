// Package source implements the series data source the poller reads from.
//
// Store holds series in memory; Handler serves
// GET /data.json?start=N[&from=name:N] from it; Generator fills it with
// synthetic head-motion estimates, one sample per TR, for dry runs without
// a scanner.
package source
