package rest

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/baechuer/teamup/internal/logger"
	"github.com/baechuer/teamup/internal/security"
)

type AuthOptions struct {
	// ExpectedIssuer, when set, must equal the token's iss claim.
	ExpectedIssuer string
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// AuthMiddleware puts the caller's AuthContext on the request. Any failure is
// a 401 auth.unauthorized.
func AuthMiddleware(verifier security.AccessTokenVerifier, opt AuthOptions) func(next http.Handler) http.Handler {
	if verifier == nil {
		panic("AuthMiddleware: nil verifier")
	}
	authenticate := func(r *http.Request) (AuthContext, string) {
		raw, ok := bearerToken(r)
		if !ok {
			return AuthContext{}, "missing bearer token"
		}
		claims, err := verifier.VerifyAccessToken(raw)
		if err != nil || (opt.ExpectedIssuer != "" && claims.Issuer != opt.ExpectedIssuer) {
			return AuthContext{}, "invalid token"
		}
		uid := strings.TrimSpace(claims.UserID)
		if uid == "" {
			return AuthContext{}, "invalid token"
		}
		return AuthContext{UserID: uid, Role: strings.TrimSpace(claims.Role)}, ""
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, reason := authenticate(r)
			if reason != "" {
				fail(w, r, http.StatusUnauthorized, "auth.unauthorized", reason, nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(withAuth(r.Context(), ac)))
		})
	}
}

// RateLimiter is the shared fixed-window counter (Redis in production).
type RateLimiter interface {
	AllowRequest(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

func RateLimitMiddleware(rl RateLimiter, limit int, window time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := rl.AllowRequest(r.Context(), "ip:"+clientIP(r), limit, window)
			if err != nil {
				logger.WithCtx(r.Context()).Warn().Err(err).Msg("rate limiter unavailable")
			}
			if !allowed {
				fail(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP keeps it simple: RemoteAddr host part. middleware.RealIP runs
// first when the service sits behind a trusted proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cross-Origin-Resource-Policy", "same-site")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
