package json

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Host string `json:"host"`
	}

	r := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"host":"a","port":1}`))
	assert.Error(t, Read(r, &dst))

	r = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"host":"a"}`))
	require.NoError(t, Read(r, &dst))
	assert.Equal(t, "a", dst.Host)
}

func TestWriteRateLimitError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteRateLimitError(rec, 3)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Too Many Requests","message":"Too many requests. Please try again later."}`, rec.Body.String())
}
