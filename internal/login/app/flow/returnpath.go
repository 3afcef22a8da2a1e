package flow

import (
	"errors"
	"net/url"
	"strings"
)

var ErrUnsafeReturnPath = errors.New("return path must be a relative path on this site")

// SafeReturnPath validates a post-login destination. Only same-site absolute
// paths are accepted; anything carrying a scheme or host, or a protocol
// relative "//host" form, is rejected. The result keeps path and query.
func SafeReturnPath(raw string) (string, error) {
	next := strings.TrimSpace(raw)
	if next == "" {
		return "", ErrUnsafeReturnPath
	}
	if strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") || strings.ContainsAny(next, "\r\n") {
		return "", ErrUnsafeReturnPath
	}

	parsed, err := url.Parse(next)
	if err != nil || parsed.Scheme != "" || parsed.Host != "" || parsed.User != nil {
		return "", ErrUnsafeReturnPath
	}
	if !strings.HasPrefix(parsed.Path, "/") {
		return "", ErrUnsafeReturnPath
	}

	if parsed.RawQuery != "" {
		return parsed.Path + "?" + parsed.RawQuery, nil
	}
	return parsed.Path, nil
}

// ReturnPath picks the query value when it is safe, otherwise the
// programmatically configured one.
func ReturnPath(query Query, configured string) string {
	if p, err := SafeReturnPath(query.ReturnPath); err == nil {
		return p
	}
	return configured
}
