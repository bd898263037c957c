package main

import (
	"context"
	"fmt"
	"net"
	"testing"

	"cosensync/internal/api"
)

func TestFormatCLIError_NetworkGuidance(t *testing.T) {
	err := &net.DNSError{Err: "dial tcp: connection refused", Name: "127.0.0.1", IsTemporary: true}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: ensure a cosensync server is running at COSENSYNC_API_URL.") {
		t.Fatalf("expected connectivity guidance, got %v", lines)
	}
	if !containsLine(lines, "hint: start a local server manually with: cosensync serve") {
		t.Fatalf("expected manual-start guidance, got %v", lines)
	}
}

func TestFormatCLIError_APIUnknownServiceGuidance(t *testing.T) {
	err := &api.APIError{Status: 404, Message: "api error: 404 Not Found"}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: verify COSENSYNC_API_URL points to a cosensync server.") {
		t.Fatalf("expected api-url guidance, got %v", lines)
	}
}

func TestFormatCLIError_GCInProgressGuidance(t *testing.T) {
	err := &api.APIError{Status: 429, Code: "resource_exhausted", ErrorCode: 3003, Message: "gc already running"}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: a gc run is already in progress; retry once it finishes.") {
		t.Fatalf("expected gc guidance, got %v", lines)
	}
}

func TestFormatCLIError_MediaTypeGuidance(t *testing.T) {
	for _, code := range []int{errCodeUnsupportedMediaType, errCodeMediaTypeMismatch} {
		err := &api.APIError{Status: 400, Code: "invalid_argument", ErrorCode: code, Message: "not an image"}
		lines := formatCLIError(err)
		if !containsLine(lines, "hint: only image files are accepted; check the file contents match its extension.") {
			t.Fatalf("expected media type guidance for %d, got %v", code, lines)
		}
	}
}

func TestFormatCLIError_APIInternalGuidance(t *testing.T) {
	err := &api.APIError{Status: 500, Code: "internal", Message: "internal error"}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: server returned an internal error; check server logs for details.") {
		t.Fatalf("expected internal-error guidance, got %v", lines)
	}
}

func TestFormatCLIError_WrappedTimeout(t *testing.T) {
	err := fmt.Errorf("upload a.png: %w", context.DeadlineExceeded)
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: request timed out; check server health or increase COSENSYNC_HTTP_TIMEOUT.") {
		t.Fatalf("expected timeout guidance, got %v", lines)
	}
}

func TestFormatCLIError_Nil(t *testing.T) {
	if lines := formatCLIError(nil); lines != nil {
		t.Fatalf("expected nil, got %v", lines)
	}
}

func containsLine(lines []string, expected string) bool {
	for _, line := range lines {
		if line == expected {
			return true
		}
	}
	return false
}
