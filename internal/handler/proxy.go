package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"relay-proxy-go/internal/auth"
	"relay-proxy-go/internal/headers"
	"relay-proxy-go/internal/model"
	"relay-proxy-go/internal/service"
)

// secretParamPattern matches credential-like query parameter values in URLs
// embedded in error messages.
var secretParamPattern = regexp.MustCompile(`(?i)((?:api_?key|key|token|access_token|secret|password|passwd|header_auth|sig|signature)=)[^&\s"]+`)

// ProxyHandler serves /proxy: it hands the request to the ProxyService and
// relays the upstream response.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle forwards the request and writes the upstream status, headers and body back.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return h.mapError(c, err)
	}

	pr := &model.ProxyRequest{
		Ctx:    req.Context(),
		Method: req.Method,
		Query:  parseQuery(req.URL.RawQuery),
		Header: req.Header,
		Body:   body,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}

	return h.relay(c, resp)
}

// relay copies resp onto the echo response. Header values that cannot be
// represented are dropped; an unusable status code becomes 500.
func (h *ProxyHandler) relay(c echo.Context, resp *model.ProxyResponse) error {
	dst := c.Response().Header()
	for key, vals := range headers.Filter(resp.Header, headers.Printable) {
		dst[key] = vals
	}
	if _, ok := resp.Header["Content-Type"]; !ok {
		// nil suppresses content sniffing by net/http.
		dst["Content-Type"] = nil
	}

	status := relayStatus(resp.StatusCode)
	if status != resp.StatusCode {
		h.logger.Warn("upstream status not relayable, using 500",
			"upstream_status", resp.StatusCode,
		)
	}

	c.Response().WriteHeader(status)
	if _, err := c.Response().Write(resp.Body); err != nil {
		h.logger.Error("writing response body",
			"err", err,
			"path", c.Request().URL.Path,
		)
	}
	return nil
}

// relayStatus returns code when it can be written as a final response status,
// otherwise 500. net/http rejects codes outside 100..999 and treats 1xx as
// informational.
func relayStatus(code int) int {
	if code < 200 || code > 999 {
		return http.StatusInternalServerError
	}
	return code
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("proxy error",
		"err", sanitizeError(err),
		"method", c.Request().Method,
		"path", c.Request().URL.Path,
	)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}

	switch {
	case errors.Is(err, auth.ErrMissingHeader):
		return c.String(http.StatusBadRequest, "Missing header_auth in request headers")
	case errors.Is(err, auth.ErrInvalidEncoding):
		return c.String(http.StatusBadRequest, "Invalid header_auth value")
	case errors.Is(err, auth.ErrMismatch):
		return c.String(http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, service.ErrMissingURL):
		return c.String(http.StatusBadRequest, "Missing 'url' query parameter")
	case errors.Is(err, service.ErrInvalidURL):
		return c.String(http.StatusBadRequest, "Invalid 'url' query parameter")
	case errors.Is(err, service.ErrUpstreamBodyRead):
		return c.String(http.StatusInternalServerError, "Failed to read response")
	default:
		return c.String(http.StatusInternalServerError, "Failed to send request")
	}
}

// parseQuery decodes a form-urlencoded query string. Unlike url.ParseQuery it
// splits on '&' only, so a raw ';' stays part of the value, and a pair with a
// bad escape keeps its raw text instead of being dropped.
func parseQuery(raw string) url.Values {
	values := make(url.Values)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		name := unescapeQuery(key)
		values[name] = append(values[name], unescapeQuery(value))
	}
	return values
}

func unescapeQuery(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// sanitizeError redacts secrets from error messages that may contain target URLs.
func sanitizeError(err error) string {
	return secretParamPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]")
}
