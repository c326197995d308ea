// Package chanutil centralizes the buffered channel capacity shared by
// the command queues and dispatcher loops, so the whole pipeline is
// tuned from one place.
package chanutil

// DefaultCapacity is the buffer size used for per-workload command
// channels and dispatcher inboxes.
const DefaultCapacity = 32
