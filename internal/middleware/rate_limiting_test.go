package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redis_rate/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/websitekilla/webconnect/internal/middleware"
)

func TestRateLimit_FixedWindow(t *testing.T) {
	limiter := middleware.NewFixedWindowLimiter()
	limit := redis_rate.Limit{Rate: 5, Burst: 5, Period: 15 * time.Minute}

	handlerCalls := 0
	handler := middleware.RateLimit(limiter, "login", limit)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalls++
			w.WriteHeader(http.StatusOK)
		}),
	)

	doRequest := func(remoteAddr string) *httptest.ResponseRecorder {
		req, err := http.NewRequest("POST", "/api/login", nil)
		require.NoError(t, err)
		req.RemoteAddr = remoteAddr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	for i := 0; i < 5; i++ {
		rr := doRequest("83.12.53.65:2145")
		assert.Equal(t, http.StatusOK, rr.Code, "request %d", i+1)
	}
	assert.Equal(t, 5, handlerCalls)

	// the 6th request within the window is rejected without reaching
	// the handler
	rr := doRequest("83.12.53.65:2145")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.JSONEq(t, `{"error":"too many requests, try again later"}`, rr.Body.String())
	assert.Equal(t, 5, handlerCalls)

	// other client addresses have their own window
	rr = doRequest("91.35.12.8:1024")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 6, handlerCalls)
}

func TestFixedWindowLimiter_WindowReset(t *testing.T) {
	limiter := middleware.NewFixedWindowLimiter()
	limit := redis_rate.Limit{Rate: 1, Burst: 1, Period: time.Minute}

	res, err := limiter.Allow(context.Background(), "login||localhost", limit)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Allowed)

	res, err = limiter.Allow(context.Background(), "login||localhost", limit)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}
