// Package repourl derives a normalized owner/name pair from a
// repository URL. Parsing is best effort: anything unrecognizable
// falls back to the raw input so scan creation never fails on it.
package repourl

import (
	"net/url"
	"strings"
)

// Normalize returns "owner/name" for the common GitHub URL shapes
// (https, ssh, with or without a trailing .git). On any parse failure
// it returns the raw input unchanged.
func Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw
	}

	if owner, name, ok := splitSSH(trimmed); ok {
		return owner + "/" + name
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return raw
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 || segments[0] == "" || segments[1] == "" {
		return raw
	}

	return segments[0] + "/" + strings.TrimSuffix(segments[1], ".git")
}

// Split returns the owner and name halves of Normalize's output.
// ok is false when normalization fell back to the raw URL.
func Split(raw string) (owner, name string, ok bool) {
	parts := strings.Split(Normalize(raw), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func splitSSH(s string) (owner, name string, ok bool) {
	// git@github.com:owner/name.git
	if !strings.HasPrefix(s, "git@") {
		return "", "", false
	}
	idx := strings.Index(s, ":")
	if idx < 0 || idx == len(s)-1 {
		return "", "", false
	}
	path := strings.Trim(s[idx+1:], "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), true
}
