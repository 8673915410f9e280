package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/irsalhamdi/e-learning/api/web"
	"github.com/irsalhamdi/e-learning/api/weberr"
	"github.com/irsalhamdi/e-learning/rate"
)

// RateLimit rejects clients, keyed by remote address, that exceed the
// limiter's budget.
func RateLimit(lm *rate.Limiter) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			if !lm.Check(ip) {
				return weberr.NewError(
					errors.New("rate limit exceeded"),
					"too many requests, slow down",
					http.StatusTooManyRequests,
					weberr.WithFields(map[string]interface{}{"remote": ip}),
				)
			}

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
