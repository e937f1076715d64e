package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grokproxy/go_media/internal/grok"
)

type stubUpscaler struct {
	result    *grok.UpscaleResult
	err       error
	lastID    string
	lastToken string
}

func (s *stubUpscaler) UpscaleVideo(_ context.Context, videoID, authToken string) (*grok.UpscaleResult, error) {
	s.lastID = videoID
	s.lastToken = authToken
	return s.result, s.err
}

func newTestServer(t *testing.T, up Upscaler) *Server {
	t.Helper()
	return New(Config{Port: "0", CacheDir: t.TempDir()}, up)
}

func TestHandleUpscaleSuccess(t *testing.T) {
	up := &stubUpscaler{result: &grok.UpscaleResult{
		HDMediaURL: "/images/vid-abc.mp4",
		Success:    true,
		Data:       map[string]any{"hdMediaUrl": "https://cdn.example/vid/abc.mp4"},
	}}
	s := newTestServer(t, up)

	req := httptest.NewRequest("POST", "/rest/media/video/upscale", strings.NewReader(`{"videoId":"vid-1"}`))
	req.Header.Set("Cookie", "sso=TOK")
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "vid-1", up.lastID)
	assert.Equal(t, "sso=TOK", up.lastToken)

	var out grok.UpscaleResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.True(t, out.Success)
	assert.Equal(t, "/images/vid-abc.mp4", out.HDMediaURL)
}

func TestHandleUpscaleAuthHeaderWins(t *testing.T) {
	up := &stubUpscaler{result: &grok.UpscaleResult{Success: true}}
	s := newTestServer(t, up)

	req := httptest.NewRequest("POST", "/rest/media/video/upscale", strings.NewReader(`{"videoId":"vid-1"}`))
	req.Header.Set("x-auth-token", "TOK")
	req.Header.Set("Cookie", "ignored")
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)

	assert.Equal(t, "TOK", up.lastToken)
}

func TestHandleUpscaleErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid params", &grok.APIError{Code: grok.CodeInvalidParams, Message: "video ID missing"}, http.StatusBadRequest, grok.CodeInvalidParams},
		{"no auth token", &grok.APIError{Code: grok.CodeNoAuthToken, Message: "authentication token missing"}, http.StatusUnauthorized, grok.CodeNoAuthToken},
		{"upstream failure", &grok.APIError{Code: grok.CodeUpscaleError, Message: "status code: 503"}, http.StatusBadGateway, grok.CodeUpscaleError},
		{"untyped error", errors.New("boom"), http.StatusInternalServerError, grok.CodeUpscaleError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &stubUpscaler{err: tt.err})

			req := httptest.NewRequest("POST", "/rest/media/video/upscale", strings.NewReader(`{"videoId":"vid-1"}`))
			w := httptest.NewRecorder()
			s.srv.Handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body["code"])
		})
	}
}

func TestHandleUpscaleBadJSON(t *testing.T) {
	s := newTestServer(t, &stubUpscaler{})

	req := httptest.NewRequest("POST", "/rest/media/video/upscale", strings.NewReader("{"))
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleImage(t *testing.T) {
	s := newTestServer(t, &stubUpscaler{})
	require.NoError(t, os.WriteFile(filepath.Join(s.cfg.CacheDir, "vid-abc.mp4"), []byte("mp4 bytes"), 0o644))

	req := httptest.NewRequest("GET", "/images/vid-abc.mp4", nil)
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mp4 bytes", w.Body.String())
}

func TestHandleImageMissing(t *testing.T) {
	s := newTestServer(t, &stubUpscaler{})

	req := httptest.NewRequest("GET", "/images/nope.mp4", nil)
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleImageRejectsTraversal(t *testing.T) {
	s := newTestServer(t, &stubUpscaler{})

	for _, name := range []string{"..", ".hidden", "../secret"} {
		req := httptest.NewRequest("GET", "/images/placeholder", nil)
		req.SetPathValue("name", name)
		w := httptest.NewRecorder()
		s.handleImage(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code, "name %q", name)
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, &stubUpscaler{})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestHandleMetrics(t *testing.T) {
	s := newTestServer(t, &stubUpscaler{})
	s.cfg.CacheStats = func() (int64, int64) { return 3, 1 }

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "upscale_requests")
	assert.Contains(t, w.Body.String(), "cache_hits 3")
}
