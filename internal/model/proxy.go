// Package model defines shared types for the proxy.
package model

import (
	"context"
	"net/http"
	"net/url"
)

// ProxyRequest represents an inbound request to be forwarded to the target
// named by its `url` query parameter. The body is fully buffered.
type ProxyRequest struct {
	Ctx    context.Context
	Method string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// ProxyResponse represents a buffered upstream response to be relayed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}
