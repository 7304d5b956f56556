package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/baechuer/teamup/internal/metrics"
	"github.com/baechuer/teamup/internal/security"
	"github.com/baechuer/teamup/internal/transport/rest/response"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

type RouterDeps struct {
	Handler   *Handler
	Verifier  security.AccessTokenVerifier
	JWTIssuer string

	// Limiter is the shared Redis window; nil falls back to an in-process
	// httprate limiter.
	Limiter   RateLimiter
	RLEnabled bool
	RLLimit   int
	RLWindow  time.Duration

	// Ready backs /readyz. Nil means always ready.
	Ready func(ctx context.Context) error
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Handler == nil {
		panic("rest.NewRouter: nil handler")
	}
	if d.Verifier == nil {
		panic("rest.NewRouter: nil verifier")
	}

	r := chi.NewRouter()

	// Request ID + structured access log
	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(HTTPLogger)

	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)

	if d.RLEnabled && d.RLLimit > 0 {
		if d.Limiter != nil {
			r.Use(RateLimitMiddleware(d.Limiter, d.RLLimit, d.RLWindow))
		} else {
			r.Use(httprate.LimitByIP(d.RLLimit, d.RLWindow))
		}
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		response.Data(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.Ready(ctx); err != nil {
				fail(w, r, http.StatusServiceUnavailable, "not_ready", err.Error(), nil)
				return
			}
		}
		response.Data(w, r, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Handle("/metrics", metrics.Handler())

	h := d.Handler
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(d.Verifier, AuthOptions{ExpectedIssuer: d.JWTIssuer}))

		r.Route("/games/{gameID}", func(r chi.Router) {
			r.Post("/registrations", h.Register)
			r.Delete("/registrations/me", h.CancelMine)
			r.Delete("/registrations/{userID}", h.CancelFor)

			r.Get("/waitlist", h.Waitlist)
			r.Post("/waitlist/process", h.ProcessWaitlist)
			r.Get("/priority-status", h.PriorityStatus)

			// management
			r.Put("/capacity", h.UpdateCapacity)
			r.Post("/cancel", h.CancelGame)
			r.Post("/results", h.RecordResults)
		})

		r.Put("/groups/{groupID}/priority-overrides/{userID}", h.SetPriorityOverride)

		r.Post("/series", h.CreateSeries)
		r.Route("/series/{seriesID}", func(r chi.Router) {
			r.Get("/", h.GetSeries)
			r.Patch("/", h.UpdateSeries)
			r.Delete("/", h.DeleteSeries)
			r.Post("/instances", h.GenerateInstances)
			r.Patch("/instances", h.UpdateFutureInstances)
		})
	})

	return r
}
