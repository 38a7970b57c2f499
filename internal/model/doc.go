// Package model defines the series types shared by the poller, the data
// source and the chart feed.
//
// Conventions:
//   - X is seconds since the start of the scan
//   - Y is millimetres (displacement) or degrees (rotation)
//   - A point's index is its position in its series; indices never change
//     once assigned because points are only ever appended
package model
