package ui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turbofire/internal/config"
)

func newHandler(t *testing.T) (*Handler, *config.Manager) {
	t.Helper()
	mgr, err := config.NewManager(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	require.NoError(t, mgr.Load())
	return NewHandler(mgr), mgr
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestIndex(t *testing.T) {
	h, _ := newHandler(t)
	rec := serve(h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "/api/trigger/designate")
	assert.Contains(t, rec.Body.String(), "case 'running_changed':")

	rec = serve(h, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetConfig(t *testing.T) {
	h, _ := newHandler(t)
	rec := serve(h, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg config.Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, *config.DefaultConfig(), cfg)
}

func TestPutConfigValidatesAndSaves(t *testing.T) {
	h, mgr := newHandler(t)

	rec := serve(h, http.MethodPut, "/api/config", `{"general":{"default_interval_ms":999,"start_on_boot":false}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// Fields missing from the body keep their current values.
	got := mgr.Get()
	assert.Equal(t, 150, got.General.DefaultIntervalMs)
	assert.Equal(t, config.DefaultAPIPort, got.General.APIPort)

	data, err := os.ReadFile(mgr.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"default_interval_ms": 150`)
}

func TestPutConfigRejectsInvalid(t *testing.T) {
	h, mgr := newHandler(t)

	cases := map[string]string{
		"malformed":         `{`,
		"bad trigger":       `{"general":{"startup_trigger":"NoSuchKey"}}`,
		"port out of range": `{"general":{"api_port":70000}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := serve(h, http.MethodPut, "/api/config", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Equal(t, config.DefaultConfig(), mgr.Get())
	_, err := os.Stat(mgr.Path())
	assert.True(t, os.IsNotExist(err))
}
