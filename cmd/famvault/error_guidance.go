package main

import (
	"context"
	"errors"
	"net"

	"famvault/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "unauthorized":
			lines = append(lines, "hint: verify FAMVAULT_API_TOKEN holds a valid, unrevoked token.")
		case "forbidden":
			lines = append(lines, "hint: admin commands need FAMVAULT_ADMIN_TOKEN to match the server.")
		case "resource_exhausted":
			lines = append(lines, "hint: retry shortly; the server limits concurrent uploads and repeated failed logins.")
		}
		switch apiErr.ErrorCode {
		case 1016:
			lines = append(lines, "hint: the file exceeds attachments.max_upload_bytes on the server.")
		case 1017:
			lines = append(lines, "hint: the file type is not in attachments.allowed_media_types.")
		case 2102:
			lines = append(lines, "hint: the record changed since it was read; fetch it again and retry.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify FAMVAULT_API_URL points to a famvault server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase FAMVAULT_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a famvault server is running at FAMVAULT_API_URL.",
			"hint: start local server manually with: famvault srv",
		)
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
