package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/websitekilla/webconnect/internal/middleware"
)

func corsTestHandler(t *testing.T) http.Handler {
	t.Helper()
	return middleware.Cors([]string{"https://www.215webconnect.com", "http://localhost:3000"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)
}

func TestCors(t *testing.T) {
	testCases := []struct {
		name               string
		origin             string
		method             string
		expectedStatusCode int
		expectedAllow      string
	}{
		{
			name:               "NoOriginPassesThrough",
			method:             "GET",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "AllowedOrigin",
			origin:             "https://www.215webconnect.com",
			method:             "GET",
			expectedStatusCode: http.StatusOK,
			expectedAllow:      "https://www.215webconnect.com",
		},
		{
			name:               "AllowedLocalhostOrigin",
			origin:             "http://localhost:3000",
			method:             "GET",
			expectedStatusCode: http.StatusOK,
			expectedAllow:      "http://localhost:3000",
		},
		{
			name:               "DisallowedOrigin",
			origin:             "https://evil.example.com",
			method:             "GET",
			expectedStatusCode: http.StatusForbidden,
		},
		{
			name:               "PreflightAllowedOrigin",
			origin:             "https://www.215webconnect.com",
			method:             "OPTIONS",
			expectedStatusCode: http.StatusOK,
			expectedAllow:      "https://www.215webconnect.com",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, "/api/login", nil)
			require.NoError(t, err)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}

			rr := httptest.NewRecorder()
			corsTestHandler(t).ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedStatusCode, rr.Code)
			assert.Equal(t, tc.expectedAllow, rr.Header().Get("Access-Control-Allow-Origin"))
			if tc.expectedAllow != "" {
				assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
			}
		})
	}
}
