package logger

import (
	nethttp "net/http"
	"strings"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "***"

// DefaultSensitiveHeaders are always redacted, compared case-insensitively.
var DefaultSensitiveHeaders = []string{
	"Authorization",
	"Proxy-Authorization",
	"Cookie",
	"Set-Cookie",
	"X-API-Key",
}

var sensitiveFragments = []string{"token", "secret", "password"}

// HeaderFilter redacts credentials from header-shaped log fields.
type HeaderFilter struct {
	names map[string]struct{}
}

// NewHeaderFilter builds a filter from DefaultSensitiveHeaders plus extra.
func NewHeaderFilter(extra []string) *HeaderFilter {
	f := &HeaderFilter{names: make(map[string]struct{})}
	for _, n := range append(append([]string{}, DefaultSensitiveHeaders...), extra...) {
		f.names[strings.ToLower(n)] = struct{}{}
	}
	return f
}

// IsSensitive reports whether key names a credential.
func (f *HeaderFilter) IsSensitive(key string) bool {
	lower := strings.ToLower(key)
	if _, ok := f.names[lower]; ok {
		return true
	}
	for _, frag := range sensitiveFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// FilterString redacts value when key is sensitive.
func (f *HeaderFilter) FilterString(key, value string) string {
	if value != "" && f.IsSensitive(key) {
		return RedactedValue
	}
	return value
}

// FilterValue redacts sensitive entries of header maps, or the whole value
// when key itself is sensitive. The input is never mutated.
func (f *HeaderFilter) FilterValue(key string, v any) any {
	if f.IsSensitive(key) {
		return RedactedValue
	}
	switch typed := v.(type) {
	case nethttp.Header:
		out := make(nethttp.Header, len(typed))
		for k, vals := range typed {
			if f.IsSensitive(k) {
				out[k] = []string{RedactedValue}
				continue
			}
			out[k] = vals
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(typed))
		for k, val := range typed {
			out[k] = f.FilterString(k, val)
		}
		return out
	case map[string]any:
		return f.FilterFields(typed)
	}
	return v
}

// FilterFields returns a copy of fields with sensitive values redacted.
func (f *HeaderFilter) FilterFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = f.FilterValue(k, v)
	}
	return out
}
