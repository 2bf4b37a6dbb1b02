package mw

import (
	"net/http"
	"strings"
)

const maxLogValue = 200

var sensitiveHeaders = map[string]struct{}{
	"authorization":       {},
	"cookie":              {},
	"set-cookie":          {},
	"proxy-authorization": {},
	"x-api-key":           {},
	"x-forwarded-for":     {},
}

// SanitizeForLog strips control characters so a value cannot forge log lines.
func SanitizeForLog(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	if len(s) > maxLogValue {
		s = s[:maxLogValue]
	}
	return s
}

// SanitizeHeaders returns a copy of h safe for logging, with credentials redacted.
func SanitizeHeaders(h http.Header) map[string][]string {
	if h == nil {
		return nil
	}
	out := make(map[string][]string, len(h))
	for k, vals := range h {
		if _, ok := sensitiveHeaders[strings.ToLower(k)]; ok {
			out[k] = []string{"<redacted>"}
			continue
		}
		clean := make([]string, 0, len(vals))
		for _, v := range vals {
			clean = append(clean, SanitizeForLog(v))
		}
		out[k] = clean
	}
	return out
}

// SanitizePath prepares a request path for logging. Query parameters are dropped.
func SanitizePath(p string) string {
	if i := strings.Index(p, "?"); i != -1 {
		p = p[:i]
	}
	return SanitizeForLog(p)
}
