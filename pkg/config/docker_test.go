package config

import (
	"testing"
)

func TestResolveLoopback(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"localhost", "host.docker.internal"},
		{"127.0.0.1", "host.docker.internal"},
		{"::1", "host.docker.internal"},
		{"warehouse.internal", "warehouse.internal"},
		{"10.0.0.12", "10.0.0.12"},
	}

	for _, tt := range tests {
		if got := resolveLoopback(tt.input); got != tt.expected {
			t.Errorf("resolveLoopback(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestResolveHostForDocker_RemoteHostUnchanged(t *testing.T) {
	// Non-loopback hosts are never rewritten, inside or outside a container.
	if got := ResolveHostForDocker("warehouse.internal"); got != "warehouse.internal" {
		t.Errorf("ResolveHostForDocker changed a remote host: %q", got)
	}
}
