package handler

import (
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
)

// DevHandler echoes inbound requests back as plain text. It is only routed
// when dev mode is enabled.
type DevHandler struct{}

// NewDevHandler creates a DevHandler.
func NewDevHandler() *DevHandler {
	return &DevHandler{}
}

// Echo writes the request method, URI, headers (including host) and body.
func (h *DevHandler) Echo(c echo.Context) error {
	req := c.Request()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}

	// net/http moves Host out of the header map.
	fields := req.Header.Clone()
	if fields == nil {
		fields = make(http.Header)
	}
	if req.Host != "" {
		fields["Host"] = []string{req.Host}
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		for _, v := range fields[name] {
			if !utf8.ValidString(v) {
				v = ""
			}
			lines = append(lines, fmt.Sprintf("%s: %s", strings.ToLower(name), v))
		}
	}

	out := fmt.Sprintf("Method: %s\nURI: %s\nHeaders:\n%s\nBody:\n%s",
		req.Method,
		req.RequestURI,
		strings.Join(lines, "\n"),
		strings.ToValidUTF8(string(body), "\uFFFD"),
	)
	return c.String(http.StatusOK, out)
}
