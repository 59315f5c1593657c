package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serveCORS(t *testing.T, config *CORSConfig, method, origin string) *httptest.ResponseRecorder {
	t.Helper()

	handler := CORS(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(method, "/auth/login", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func TestCORS_AllowedOrigin(t *testing.T) {
	config := NewCORSConfig([]string{"https://app.example.com"})

	recorder := serveCORS(t, config, "POST", "https://app.example.com")

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "https://app.example.com", recorder.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", recorder.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, recorder.Header().Get("Access-Control-Allow-Headers"), "X-Device-Fingerprint")
}

func TestCORS_UnknownOriginGetsNoHeaders(t *testing.T) {
	config := NewCORSConfig([]string{"https://app.example.com"})

	recorder := serveCORS(t, config, "POST", "https://evil.example.net")

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Empty(t, recorder.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, recorder.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_EmptyAllowlistFailsClosed(t *testing.T) {
	config := NewCORSConfig(nil)

	recorder := serveCORS(t, config, "POST", "https://app.example.com")
	assert.Empty(t, recorder.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	config := NewCORSConfig([]string{"https://app.example.com"})

	recorder := serveCORS(t, config, "OPTIONS", "https://app.example.com")

	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Equal(t, "https://app.example.com", recorder.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "3600", recorder.Header().Get("Access-Control-Max-Age"))
}
