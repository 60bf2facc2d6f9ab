package health

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/zero-day-ai/climber/beanstalk"
)

func TestServerCheck(t *testing.T) {
	// Start a test TCP server
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start test server: %v", err)
	}
	defer listener.Close()

	// Accept connections in background
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	// Reserve a port nobody listens on
	closed, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	closedAddr := closed.Addr().String()
	closed.Close()

	tests := []struct {
		name          string
		addr          string
		expectHealthy bool
	}{
		{
			name:          "successful connection to test server",
			addr:          listener.Addr().String(),
			expectHealthy: true,
		},
		{
			name:          "connection to closed port",
			addr:          closedAddr,
			expectHealthy: false,
		},
		{
			name:          "empty address",
			addr:          "",
			expectHealthy: false,
		},
		{
			name:          "address without port",
			addr:          "127.0.0.1",
			expectHealthy: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			status := ServerCheck(ctx, tt.addr)

			if tt.expectHealthy && !status.IsHealthy() {
				t.Errorf("expected healthy status, got %s: %s", status.Status, status.Message)
			}

			if !tt.expectHealthy && !status.IsUnhealthy() {
				t.Errorf("expected unhealthy status, got %s: %s", status.Status, status.Message)
			}

			if status.Message == "" {
				t.Error("expected non-empty message")
			}
		})
	}
}

func TestServerCheckWithNilContext(t *testing.T) {
	//nolint:staticcheck // nil context is handled explicitly
	status := ServerCheck(nil, "127.0.0.1")
	if !status.IsUnhealthy() {
		t.Errorf("expected unhealthy status, got %s", status.Status)
	}
}

func TestClientCheck(t *testing.T) {
	srv := beanstalk.NewMemoryServer()
	srv.Insert("emails", []byte("x"))
	client := srv.Client("mem:11300")

	status := ClientCheck(context.Background(), client)
	if !status.IsHealthy() {
		t.Fatalf("expected healthy status, got %s: %s", status.Status, status.Message)
	}
	if got := status.Details["tubes"]; got != 2 {
		t.Errorf("tubes = %v, want 2", got)
	}
	if got := status.Details["addr"]; got != "mem:11300" {
		t.Errorf("addr = %v, want mem:11300", got)
	}

	client.Close()
	status = ClientCheck(context.Background(), client)
	if !status.IsUnhealthy() {
		t.Errorf("expected unhealthy status after close, got %s", status.Status)
	}
}

func TestCombine(t *testing.T) {
	tests := []struct {
		name   string
		checks []Status
		want   string
	}{
		{
			name:   "no checks",
			checks: nil,
			want:   StatusHealthy,
		},
		{
			name:   "all healthy",
			checks: []Status{Healthy("a"), Healthy("b")},
			want:   StatusHealthy,
		},
		{
			name:   "one degraded",
			checks: []Status{Healthy("a"), Degraded("slow", nil)},
			want:   StatusDegraded,
		},
		{
			name:   "unhealthy wins",
			checks: []Status{Degraded("slow", nil), Unhealthy("down", nil), Healthy("ok")},
			want:   StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Combine(tt.checks...)
			if got.Status != tt.want {
				t.Errorf("Combine() status = %s, want %s", got.Status, tt.want)
			}
		})
	}

	t.Run("failed checks listed", func(t *testing.T) {
		got := Combine(Unhealthy("", nil), Unhealthy("down", nil))
		failed, ok := got.Details["failed_checks"].([]string)
		if !ok {
			t.Fatalf("failed_checks has type %T", got.Details["failed_checks"])
		}
		if len(failed) != 2 || failed[0] != "unnamed check" || failed[1] != "down" {
			t.Errorf("failed_checks = %v", failed)
		}
	})
}
