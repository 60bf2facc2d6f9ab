// Package health provides health checks for queue servers.
//
// # Health Check Functions
//
//   - ServerCheck: Verify TCP connectivity to a host:port
//   - ClientCheck: Verify an open client gets an answer to list-tubes
//   - Combine: Aggregate multiple health checks into a single status
//
// # Usage Example
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//
//	overall := health.Combine(
//	    health.ServerCheck(ctx, "queue-a:11300"),
//	    health.ServerCheck(ctx, "queue-b:11300"),
//	)
//	if overall.IsUnhealthy() {
//	    log.Printf("Health check failed: %s", overall.Message)
//	    log.Printf("Details: %+v", overall.Details)
//	}
//
// # Health Status Priority
//
// When combining health checks with Combine(), the result follows this priority:
//
//   - Unhealthy: If any check is unhealthy, the combined result is unhealthy
//   - Degraded: If any check is degraded (and none unhealthy), the result is degraded
//   - Healthy: If all checks are healthy, the result is healthy
//
// # Context and Timeouts
//
// ServerCheck accepts a context for timeout and cancellation control.
// If nil is passed, a default 5-second timeout is used.
package health
