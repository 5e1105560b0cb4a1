package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"
)

// rateLimit rejects requests once the shared token bucket is empty. A nil
// limiter lets everything through.
func rateLimit(l *rate.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if l == nil {
				return next(c)
			}
			r := l.Reserve()
			if !r.OK() {
				return writeError(c, http.StatusTooManyRequests, "rate_limit_error", "too many requests")
			}
			if delay := r.Delay(); delay > 0 {
				r.Cancel()
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				return writeError(c, http.StatusTooManyRequests, "rate_limit_error", "too many requests, retry in "+delay.Round(time.Second).String())
			}
			return next(c)
		}
	}
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
