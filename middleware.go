package antrian

import (
	"net/http"
	"time"
)

// RoundTripper represents the HTTP transport interface
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Middleware wraps every HTTP exchange made by a Caller, retries included.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// chain builds the middleware stack around base, first middleware outermost.
func chain(base RoundTripper, middleware []Middleware) RoundTripper {
	current := base
	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return mw(r, next)
		})
	}
	return current
}

// HeaderMiddleware sets fixed headers on every request that does not
// already carry them.
func HeaderMiddleware(header http.Header) Middleware {
	return func(req *http.Request, next RoundTripper) (*http.Response, error) {
		for key, values := range header {
			if req.Header.Get(key) != "" {
				continue
			}
			for _, v := range values {
				req.Header.Add(key, v)
			}
		}
		return next.RoundTrip(req)
	}
}

// BearerAuthMiddleware attaches an Authorization header from token, which is
// consulted on every request.
func BearerAuthMiddleware(token func() string) Middleware {
	return func(req *http.Request, next RoundTripper) (*http.Response, error) {
		if t := token(); t != "" {
			req.Header.Set("Authorization", "Bearer "+t)
		}
		return next.RoundTrip(req)
	}
}

// LoggingMiddleware logs each exchange at debug level.
func LoggingMiddleware(logger Logger) Middleware {
	logger = orNop(logger)
	return func(req *http.Request, next RoundTripper) (*http.Response, error) {
		start := time.Now()
		resp, err := next.RoundTrip(req)

		keyvals := []any{
			"method", req.Method,
			"url", req.URL.String(),
			"duration", time.Since(start),
		}
		if err != nil {
			logger.Debug("HTTP exchange failed", append(keyvals, "error", err)...)
			return resp, err
		}
		logger.Debug("HTTP exchange", append(keyvals, "status", resp.StatusCode)...)
		return resp, err
	}
}
