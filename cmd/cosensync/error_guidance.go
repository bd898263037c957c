package main

import (
	"context"
	"errors"
	"net"

	"cosensync/internal/api"
)

// Server error codes that get a dedicated hint.
const (
	errCodeInvalidJSON          = 1001
	errCodeRequestTooLarge      = 1002
	errCodeUnsupportedMediaType = 1015
	errCodeMediaTypeMismatch    = 1016
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "resource_exhausted":
			lines = append(lines, "hint: a gc run is already in progress; retry once it finishes.")
		}
		switch apiErr.ErrorCode {
		case errCodeInvalidJSON:
			lines = append(lines, "hint: pass the JSON backup exported from the project settings page.")
		case errCodeRequestTooLarge:
			lines = append(lines, "hint: raise uploads.max_upload_bytes or gc.max_export_bytes on the server.")
		case errCodeUnsupportedMediaType, errCodeMediaTypeMismatch:
			lines = append(lines, "hint: only image files are accepted; check the file contents match its extension.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify COSENSYNC_API_URL points to a cosensync server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase COSENSYNC_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a cosensync server is running at COSENSYNC_API_URL.",
			"hint: start a local server manually with: cosensync serve",
			"hint: run gc without a server with: cosensync gc --offline <export.json>",
		)
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
