package vipsfit

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerContentTypeFromResolvedFormat(t *testing.T) {
	e := newFakeEngine(40, 20, FormatAvif)
	dir := t.TempDir()
	s, err := NewServer(ServerConfig{
		SourceDir:    dir,
		ThumbnailDir: filepath.Join(dir, "thumbnail"),
		AllowedExts:  []string{".jpg"},
		Pipeline:     newFakePipeline(t, e),
	})
	require.NoError(t, err)
	do := func(method, target string, body []byte) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		s.ServeHTTP(w, httptest.NewRequest(method, target, bytes.NewReader(body)))
		return w
	}

	w := do("POST", "/process", []byte("raw"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/avif", w.Header().Get("content-type"))
	assert.Equal(t, "raw", w.Body.String())

	w = do("POST", "/process?width=20", []byte("raw"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/avif", w.Header().Get("content-type"))
	assert.Equal(t, "avif 20x10", w.Body.String())

	// the key's extension does not decide the type
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("raw"), 0644))
	w = do("GET", "/render/a.jpg?width=20", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/avif", w.Header().Get("content-type"))

	w = do("GET", "/render/a.jpg?width=20&format=webp", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/webp", w.Header().Get("content-type"))
	assert.Equal(t, "webp 20x10", w.Body.String())
}
