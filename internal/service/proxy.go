// Package service implements the core proxy forwarding logic.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/net/http/httpguts"

	"relay-proxy-go/internal/auth"
	"relay-proxy-go/internal/client"
	"relay-proxy-go/internal/headers"
	"relay-proxy-go/internal/metrics"
	"relay-proxy-go/internal/model"
)

// Query parameters read from the inbound /proxy request.
const (
	targetParam = "url"
	headerParam = "header"
)

var (
	// ErrMissingURL is returned when the url query parameter is absent.
	ErrMissingURL = errors.New("missing 'url' query parameter")
	// ErrInvalidURL is returned when the url query parameter is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid 'url' query parameter")
	// ErrUpstreamUnreachable is returned when the upstream call fails before a response arrives.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
	// ErrUpstreamBodyRead is returned when the upstream response body cannot be read in full.
	ErrUpstreamBodyRead = errors.New("upstream body read failure")
)

const userAgent = "relay-proxy-go/1.0"

// ProxyService authenticates inbound requests and forwards them to the
// target named in their query string.
type ProxyService struct {
	client  *client.UpstreamClient
	gate    *auth.Gate
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProxyService creates a ProxyService. The metrics parameter is optional.
func NewProxyService(c *client.UpstreamClient, gate *auth.Gate, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	return &ProxyService{
		client:  c,
		gate:    gate,
		logger:  logger.With("component", "proxy_service"),
		metrics: m,
	}
}

// Forward authenticates pr, sends it to its target and returns the buffered
// upstream response. Rejections happen before any outbound call is made.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	if err := s.gate.Check(pr.Header); err != nil {
		if s.metrics != nil {
			s.metrics.AuthRejections.WithLabelValues(auth.Reason(err)).Inc()
		}
		return nil, err
	}

	target, err := resolveTarget(pr.Query)
	if err != nil {
		return nil, err
	}

	method := resolveMethod(pr.Method)
	header := s.upstreamHeaders(pr)

	s.logger.Info("proxying request",
		"method", method,
		"target", target.Redacted(),
		"forward_headers", header != nil,
	)

	if header == nil {
		header = make(http.Header)
	}
	if header.Get("User-Agent") == "" {
		header.Set("User-Agent", userAgent)
	}

	resp, err := s.client.Send(pr.Ctx, method, target.String(), header, pr.Body)
	if err != nil {
		if errors.Is(err, client.ErrReadBody) {
			return nil, fmt.Errorf("%w: %w", ErrUpstreamBodyRead, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnreachable, err)
	}
	return resp, nil
}

// upstreamHeaders returns the inbound headers to forward, or nil when the
// caller did not ask for header forwarding. Presence of the header query key
// is what counts; its value is ignored.
func (s *ProxyService) upstreamHeaders(pr *model.ProxyRequest) http.Header {
	if _, ok := pr.Query[headerParam]; !ok {
		return nil
	}
	return headers.ForUpstream(pr.Header, auth.HeaderName)
}

// resolveTarget returns the parsed url query parameter. A repeated key
// resolves to its last occurrence.
func resolveTarget(query url.Values) (*url.URL, error) {
	values := query[targetParam]
	if len(values) == 0 {
		return nil, ErrMissingURL
	}
	raw := values[len(values)-1]

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute http(s) URL", ErrInvalidURL, u.Redacted())
	}
	return u, nil
}

// resolveMethod returns method if it is a valid HTTP token and GET otherwise.
func resolveMethod(method string) string {
	if !httpguts.ValidHeaderFieldName(method) {
		return http.MethodGet
	}
	return method
}
