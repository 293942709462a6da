package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntParam(t *testing.T) {
	q := url.Values{"limit": {"25"}, "page": {"x"}, "big": {"9000"}}

	n, err := IntParam(q, "limit", 1, 100, 20)
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	n, err = IntParam(q, "missing", 1, 100, 20)
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	_, err = IntParam(q, "page", 1, 100, 1)
	assert.EqualError(t, err, `page must be an integer, got "x"`)

	_, err = IntParam(q, "big", 1, 1000, 100)
	assert.EqualError(t, err, "big must be between 1 and 1000")
}

func TestPromptPreview(t *testing.T) {
	assert.Equal(t, "fix it", PromptPreview("fix it", 50))
	assert.Equal(t, "ré...", PromptPreview("réfactor", 2))
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusNotFound, ErrorNotFound, "Invocation abc not found")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"not_found","message":"Invocation abc not found"}`, w.Body.String())
}
