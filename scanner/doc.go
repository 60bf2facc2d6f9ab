// Package scanner discovers every job on one queue server through a protocol
// that offers no way to list jobs.
//
// # Max-id discovery
//
// The highest assigned id is learned by putting a probe job into a private
// tube (least urgent priority, long TTR) and deleting it immediately. The id
// the server assigned to the probe is the current maximum.
//
// # Range scan
//
// A Connection remembers which ids earlier scans visited as a pair of
// watermarks, and caches every job it found. A scan then only peeks the ids
// it has never visited (above the max watermark and below the min watermark)
// and revalidates cached jobs with a cheap existence check. In steady state
// a scan costs one probe plus one stats-job per live job.
//
// If the probe returns an id at or below the max watermark the server's id
// sequence was reset; the cache and watermarks are dropped and the next
// phases treat the server as unexplored.
//
// # Telemetry
//
// Each scan runs inside a "climber.scan" span and increments the
// climber.scan.* counters (probes, peeks, existence_checks, evictions,
// resets). Both use the global OpenTelemetry providers unless
// WithMeterProvider or WithTracerProvider is given.
package scanner
