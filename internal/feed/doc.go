// Package feed pushes chart snapshots to browser viewers over WebSocket.
//
// A Hub is the poller's chart: every Update replaces the current snapshot
// and fans it out to connected viewers. Fan-out never blocks; a viewer
// whose send queue is full misses that frame and picks up the next one,
// since every frame carries the full series state.
package feed
