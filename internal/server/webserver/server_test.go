package webserver

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServesOverlay(t *testing.T) {
	app, err := NewApp("http://localhost:8080", false)
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest("GET", "/config", nil))
	require.NoError(t, err)
	var cfg map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	assert.Equal(t, "http://localhost:8080", cfg["apiUrl"])

	tests := []struct {
		path        string
		contentType string
		contains    string
	}{
		{"/", "text/html; charset=utf-8", "<title>Scoreboard</title>"},
		{"/match/0190a1b2", "text/html; charset=utf-8", "widget.js"},
		{"/widget.js", "application/javascript; charset=utf-8", "/api/v1/widget/"},
		{"/style.css", "text/css; charset=utf-8", ".board"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)
			assert.Equal(t, tt.contentType, resp.Header.Get("Content-Type"))
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), tt.contains)
		})
	}
}
