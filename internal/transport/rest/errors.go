package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/baechuer/teamup/internal/domain"
	"github.com/baechuer/teamup/internal/logger"
	pkgctx "github.com/baechuer/teamup/internal/pkg/context"
	"github.com/baechuer/teamup/internal/transport/rest/response"
)

func statusFor(code domain.ErrCode) int {
	switch code {
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeStateConflict:
		return http.StatusConflict
	case domain.CodePersistence:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	var meta map[string]string

	// a partial waitlist run still reports how far it got
	var pe *domain.PromotionError
	if errors.As(err, &pe) {
		meta = map[string]string{"promoted": strconv.Itoa(pe.Promoted)}
	}

	var ae *domain.AppError
	if !errors.As(err, &ae) {
		logger.WithCtx(r.Context()).Error().Err(err).Msg("unhandled error")
		fail(w, r, http.StatusInternalServerError, "internal", "internal error", meta)
		return
	}

	for k, v := range ae.Meta {
		if meta == nil {
			meta = make(map[string]string, len(ae.Meta))
		}
		meta[k] = v
	}
	if ae.Retryable {
		if meta == nil {
			meta = map[string]string{}
		}
		meta["retryable"] = "true"
	}

	status := statusFor(ae.Code)
	msg := ae.Message
	if ae.Code == domain.CodePersistence {
		// cause is logged, not returned
		logger.WithCtx(r.Context()).Error().Err(err).Msg("persistence failure")
		msg = "storage unavailable"
	}
	fail(w, r, status, string(ae.Code), msg, meta)
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string) {
	reqID := pkgctx.GetRequestID(r.Context())
	if reqID == "" {
		reqID = "no-request-id"
	}
	response.Fail(w, r, status, code, message, meta, reqID)
}
