package handler

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"

	"relay-proxy-go/internal/auth"
	"relay-proxy-go/internal/client"
	"relay-proxy-go/internal/config"
	"relay-proxy-go/internal/metrics"
	"relay-proxy-go/internal/service"
)

func strPtr(s string) *string { return &s }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEcho builds a fully wired Echo instance around cfg.
func newTestEcho(t *testing.T, cfg *config.Config) *echo.Echo {
	t.Helper()
	if cfg.Upstream.TimeoutSeconds == 0 {
		cfg.Upstream.TimeoutSeconds = 10
	}
	if cfg.Upstream.IdleConnections == 0 {
		cfg.Upstream.IdleConnections = 10
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	logger := discardLogger()
	m := metrics.New()
	gate := auth.NewGate(cfg)
	uc := client.NewUpstreamClient(cfg, logger, m)
	svc := service.NewProxyService(uc, gate, logger, m)

	e := echo.New()
	RegisterRoutes(e, cfg,
		NewProxyHandler(svc, logger),
		NewHealthHandler(gate, "test"),
		NewDevHandler(),
		m,
	)
	return e
}

// proxyPath returns the /proxy request URI targeting target.
func proxyPath(target string, extra string) string {
	p := "/proxy?url=" + url.QueryEscape(target)
	if extra != "" {
		p += "&" + extra
	}
	return p
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// rawUpstream accepts a single connection, reads one request and writes
// response verbatim before closing. It is used for responses net/http
// servers refuse to produce.
func rawUpstream(t *testing.T, response string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		if _, err := http.ReadRequest(bufio.NewReader(conn)); err != nil {
			return
		}
		_, _ = io.WriteString(conn, response)
	}()

	return "http://" + ln.Addr().String() + "/"
}
