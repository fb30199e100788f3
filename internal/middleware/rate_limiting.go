package middleware

import (
	"context"
	"net/http"

	"github.com/go-redis/redis_rate/v9"
	log "github.com/sirupsen/logrus"

	"github.com/websitekilla/webconnect/pkg"
)

type RequestRateLimiter interface {
	Allow(ctx context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error)
}

// RateLimit caps requests per client address; over the cap the request
// is rejected before it ever reaches the handler
func RateLimit(rateLimiter RequestRateLimiter, routerName string, limit redis_rate.Limit) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP, err := pkg.ReadUserIP(r)
			if err != nil {
				clientIP = r.RemoteAddr
			}

			res, err := rateLimiter.Allow(r.Context(), routerName+"||"+clientIP, limit)
			if err != nil {
				log.Errorf("rate limit [%s] for %s: %s", routerName, clientIP, err)
				pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
				return
			}

			if res.Allowed > 0 {
				next.ServeHTTP(w, r)
				return
			}

			log.Warnf("rate limit [%s] hit for %s, retry after %s", routerName, clientIP, res.RetryAfter)
			pkg.WriteJSONError(w, "too many requests, try again later", http.StatusTooManyRequests)
		})
	}
}
