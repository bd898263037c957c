package server

import (
	"net/http"
	"strings"
)

// publicURL returns the absolute URL a client should embed to fetch id.
func (s *Server) publicURL(r *http.Request, id string) string {
	ref := s.blobs.URLFor(id)
	if isAbsoluteURL(ref) {
		return ref
	}
	base := s.opts.PublicBaseURL
	if base == "" {
		base = requestOrigin(r)
	}
	return base + ref
}

// requestOrigin reconstructs scheme://host as seen by the client, honouring
// the forwarding headers a TLS-terminating proxy sets.
func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := firstHeaderValue(r.Header.Get("X-Forwarded-Proto")); proto == "http" || proto == "https" {
		scheme = proto
	}
	host := r.Host
	if forwarded := firstHeaderValue(r.Header.Get("X-Forwarded-Host")); forwarded != "" {
		host = forwarded
	}
	return scheme + "://" + host
}

func firstHeaderValue(value string) string {
	if i := strings.IndexByte(value, ','); i >= 0 {
		value = value[:i]
	}
	return strings.ToLower(strings.TrimSpace(value))
}

func isAbsoluteURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
