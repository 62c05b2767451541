package skypack

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/banshee-data/skypack/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeStats(t *testing.T) {
	conn := newMockConn()
	conn.setOnWrite(answer(0))
	c := newTestClient(t, conn, clientOpts{})
	_, err := c.Perform(context.Background(), KindTelemetry, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/debug/skypack", nil)
	rec := httptest.NewRecorder()
	c.serveStats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, c.Stats(), got)
	assert.Equal(t, uint64(1), got.Completed)
}

func TestServeStats_MethodNotAllowed(t *testing.T) {
	c := newTestClient(t, newMockConn(), clientOpts{})

	req := httptest.NewRequest(http.MethodPost, "/debug/skypack", nil)
	rec := httptest.NewRecorder()
	c.serveStats(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAttachAdminRoutes(t *testing.T) {
	c := newTestClient(t, newMockConn(), clientOpts{})
	mux := http.NewServeMux()
	assert.NotPanics(t, func() { c.AttachAdminRoutes(mux) })
}

func TestLogStats(t *testing.T) {
	var lines []string
	monitoring.SetLogger(func(format string, args ...any) {
		lines = append(lines, format)
	})
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })

	c := newTestClient(t, newMockConn(), clientOpts{})
	lines = nil
	c.LogStats()
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "skypack: sent="))
}
