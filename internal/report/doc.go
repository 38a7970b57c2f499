// Package report prints the end-of-run summary of a polling session.
package report
