// Package headers filters header multimaps between the inbound request, the
// upstream request and the relayed response.
package headers

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/http/httpguts"
)

// Predicate reports whether a single header field should be kept.
type Predicate func(name, value string) bool

// Filter returns a new header containing every (name, value) pair of src for
// which keep is true. Duplicate values are preserved in order.
func Filter(src http.Header, keep Predicate) http.Header {
	dst := make(http.Header, len(src))
	for name, values := range src {
		for _, v := range values {
			if keep(name, v) {
				dst[name] = append(dst[name], v)
			}
		}
	}
	return dst
}

// Except drops the header named excluded, compared case-insensitively.
func Except(excluded string) Predicate {
	return func(name, _ string) bool {
		return !strings.EqualFold(name, excluded)
	}
}

// ValidField keeps fields that can be written on the wire: the name is an
// HTTP token and the value contains no control characters.
func ValidField(name, value string) bool {
	return httpguts.ValidHeaderFieldName(name) && httpguts.ValidHeaderFieldValue(value)
}

// Printable keeps valid fields whose value is also valid UTF-8.
func Printable(name, value string) bool {
	return ValidField(name, value) && utf8.ValidString(value)
}

// hopByHop lists connection-scoped headers that must not cross the proxy.
var hopByHop = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// EndToEnd drops hop-by-hop headers.
func EndToEnd(name, _ string) bool {
	for _, h := range hopByHop {
		if strings.EqualFold(name, h) {
			return false
		}
	}
	return true
}

// All keeps a field only when every predicate keeps it.
func All(preds ...Predicate) Predicate {
	return func(name, value string) bool {
		for _, p := range preds {
			if !p(name, value) {
				return false
			}
		}
		return true
	}
}

// ForUpstream returns the inbound headers to attach to a forwarded request.
// The auth header named authHeader is always removed, as are hop-by-hop headers.
func ForUpstream(src http.Header, authHeader string) http.Header {
	return Filter(src, All(Except(authHeader), EndToEnd, ValidField))
}
