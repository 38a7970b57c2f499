// Package buffer provides an unbounded FIFO queue between the poller and
// the point writer.
package buffer
