// Package mono provides a monotonic-clock timing helper, used wherever
// the core measures elapsed time for timeouts and latency stats instead
// of comparing wall-clock time.Time values directly.
package mono

import "time"

// base anchors NanoTime readings to the clock reading taken at start-up.
var base = time.Now()

// NanoTime returns a monotonic timestamp in nanoseconds. The absolute
// value is meaningless across processes; only differences are.
func NanoTime() int64 { return int64(time.Since(base)) }

// Since returns the duration elapsed since a NanoTime reading.
func Since(t int64) time.Duration { return time.Duration(NanoTime() - t) }

// SinceNano returns nanoseconds elapsed since a NanoTime reading.
func SinceNano(t int64) int64 { return NanoTime() - t }
