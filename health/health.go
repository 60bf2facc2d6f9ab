package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/zero-day-ai/climber/beanstalk"
)

// Health status constants represent the operational state of a server.
const (
	// StatusHealthy indicates the server is fully operational.
	StatusHealthy = "healthy"

	// StatusDegraded indicates the server is reachable but misbehaving.
	StatusDegraded = "degraded"

	// StatusUnhealthy indicates the server is not operational.
	StatusUnhealthy = "unhealthy"
)

// Status represents the health state of a server or of a set of servers.
type Status struct {
	// Status is the current health state (healthy, degraded, or unhealthy).
	Status string `json:"status"`

	// Message provides a human-readable description of the health status.
	Message string `json:"message,omitempty"`

	// Details contains additional context and diagnostic information.
	Details map[string]any `json:"details,omitempty"`
}

// IsHealthy returns true if the status is StatusHealthy.
func (s Status) IsHealthy() bool {
	return s.Status == StatusHealthy
}

// IsDegraded returns true if the status is StatusDegraded.
func (s Status) IsDegraded() bool {
	return s.Status == StatusDegraded
}

// IsUnhealthy returns true if the status is StatusUnhealthy.
func (s Status) IsUnhealthy() bool {
	return s.Status == StatusUnhealthy
}

// Healthy creates a healthy status with an optional message.
func Healthy(message string) Status {
	return Status{Status: StatusHealthy, Message: message}
}

// Degraded creates a degraded status with a message and optional details.
func Degraded(message string, details map[string]any) Status {
	return Status{Status: StatusDegraded, Message: message, Details: details}
}

// Unhealthy creates an unhealthy status with a message and optional details.
func Unhealthy(message string, details map[string]any) Status {
	return Status{Status: StatusUnhealthy, Message: message, Details: details}
}

// ServerCheck verifies TCP connectivity to a host:port address.
// It uses the provided context for timeout and cancellation control.
//
// Example:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//	status := health.ServerCheck(ctx, "queue-a:11300")
//	if status.IsUnhealthy() {
//	    log.Println("Cannot reach queue-a")
//	}
func ServerCheck(ctx context.Context, addr string) Status {
	if addr == "" {
		return Unhealthy("address cannot be empty", nil)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return Unhealthy(
			fmt.Sprintf("invalid address: %s", addr),
			map[string]any{"addr": addr, "error": err.Error()},
		)
	}

	// Use context with timeout if not already set
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Unhealthy(
			fmt.Sprintf("failed to connect to %s", addr),
			map[string]any{
				"addr":  addr,
				"error": err.Error(),
			},
		)
	}

	// Close connection immediately
	conn.Close()

	return Healthy(fmt.Sprintf("successfully connected to %s", addr))
}

// ClientCheck verifies a server answers commands by issuing list-tubes over
// an open client. The round trip time is reported in Details.
func ClientCheck(ctx context.Context, client beanstalk.Client) Status {
	start := time.Now()
	tubes, err := client.ListTubes(ctx)
	elapsed := time.Since(start)
	if err != nil {
		return Unhealthy(
			fmt.Sprintf("server %s did not answer list-tubes", client.Addr()),
			map[string]any{
				"addr":  client.Addr(),
				"error": err.Error(),
			},
		)
	}

	return Healthy(fmt.Sprintf("server %s answered with %d tube(s)", client.Addr(), len(tubes))).
		withDetails(map[string]any{
			"addr":       client.Addr(),
			"tubes":      len(tubes),
			"latency_ms": elapsed.Milliseconds(),
		})
}

func (s Status) withDetails(details map[string]any) Status {
	s.Details = details
	return s
}

// Combine aggregates multiple health checks into a single status.
// The result follows this priority:
//   - If any check is unhealthy, the result is unhealthy
//   - If any check is degraded (and none unhealthy), the result is degraded
//   - If all checks are healthy, the result is healthy
func Combine(checks ...Status) Status {
	if len(checks) == 0 {
		return Healthy("no checks provided")
	}

	var unhealthyChecks []string
	var degradedChecks []string
	var healthyCount int

	for _, check := range checks {
		msg := check.Message
		if msg == "" {
			msg = "unnamed check"
		}
		switch check.Status {
		case StatusUnhealthy:
			unhealthyChecks = append(unhealthyChecks, msg)
		case StatusDegraded:
			degradedChecks = append(degradedChecks, msg)
		case StatusHealthy:
			healthyCount++
		}
	}

	if len(unhealthyChecks) > 0 {
		return Unhealthy(
			fmt.Sprintf("%d check(s) failed", len(unhealthyChecks)),
			map[string]any{
				"total":         len(checks),
				"unhealthy":     len(unhealthyChecks),
				"degraded":      len(degradedChecks),
				"healthy":       healthyCount,
				"failed_checks": unhealthyChecks,
			},
		)
	}

	if len(degradedChecks) > 0 {
		return Degraded(
			fmt.Sprintf("%d check(s) degraded", len(degradedChecks)),
			map[string]any{
				"total":           len(checks),
				"degraded":        len(degradedChecks),
				"healthy":         healthyCount,
				"degraded_checks": degradedChecks,
			},
		)
	}

	return Healthy(fmt.Sprintf("all %d check(s) passed", len(checks)))
}
