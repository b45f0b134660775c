package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"relay-proxy-go/internal/auth"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves the root, health and status endpoints.
type HealthHandler struct {
	gate    *auth.Gate
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(gate *auth.Gate, v Version) *HealthHandler {
	return &HealthHandler{gate: gate, version: v}
}

// Hello answers the root path as a sanity check.
func (h *HealthHandler) Hello(c echo.Context) error {
	return c.String(http.StatusOK, "Hello, world!")
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns proxy status information. It never exposes the secret.
func (h *HealthHandler) Status(c echo.Context) error {
	authState := "disabled"
	if h.gate.Enabled() {
		authState = "enabled"
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": string(h.version),
		"auth":    authState,
	})
}
