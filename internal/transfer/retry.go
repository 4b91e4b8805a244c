package transfer

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// defaultTokenTTL caches tokens that carry no readable expiry.
	defaultTokenTTL = 30 * time.Minute
	// tokenExpirySlack re-authenticates a little before the server would
	// start rejecting the token.
	tokenExpirySlack = time.Minute
)

// idempotencyKey marks requests whose timeout may be safely retried.
type idempotencyKey struct{}

func idempotent(ctx context.Context) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, true)
}

func nonIdempotent(ctx context.Context) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, false)
}

func isIdempotent(ctx context.Context) bool {
	v, ok := ctx.Value(idempotencyKey{}).(bool)
	return ok && v
}

// checkRetry is the retry policy: retryable HTTP statuses and connection
// failures are retried for every method; timeouts only for idempotent
// requests. Everything else surfaces immediately.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err != nil {
		if isTimeout(err) {
			return isIdempotent(ctx), nil
		}
		// connection refused, reset, DNS failure
		return true, nil
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true, nil
	}
	return false, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// tokenTTL derives the cache lifetime for a bearer token. When the token is
// a JWT its exp claim is read without verification (the server remains the
// verifier); otherwise a fixed default applies. An expired or nearly expired
// token is cached only briefly so the next operation re-authenticates.
func tokenTTL(token string) time.Duration {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return defaultTokenTTL
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return defaultTokenTTL
	}

	ttl := time.Until(exp.Time) - tokenExpirySlack
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
