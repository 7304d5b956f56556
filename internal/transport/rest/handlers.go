package rest

import (
	"net/http"
	"strings"

	"github.com/baechuer/teamup/internal/application/roster"
	"github.com/baechuer/teamup/internal/application/series"
	"github.com/baechuer/teamup/internal/transport/rest/response"
	"github.com/go-chi/chi/v5"
)

type Handler struct {
	roster *roster.Service
	series *series.Service
}

func NewHandler(r *roster.Service, s *series.Service) *Handler {
	return &Handler{roster: r, series: s}
}

func mustAuth(w http.ResponseWriter, r *http.Request) (AuthContext, bool) {
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
	}
	return auth, ok
}

// Register signs the caller (or, for managers, user_id) up for a game.
// A full game answers 200 with status WAITLIST.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	var req registerRequest
	if err := decodeAndValidate(r, &req, true); err != nil {
		handleErr(w, r, err)
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = auth.UserID
	}

	res, err := h.roster.Register(r.Context(), auth.Actor(), chi.URLParam(r, "gameID"), userID, req.IsGuest)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	response.Data(w, r, status, res)
}

func (h *Handler) CancelMine(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	h.cancel(w, r, auth, auth.UserID)
}

func (h *Handler) CancelFor(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	h.cancel(w, r, auth, chi.URLParam(r, "userID"))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request, auth AuthContext, userID string) {
	res, err := h.roster.Cancel(r.Context(), auth.Actor(), chi.URLParam(r, "gameID"), userID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, res)
}

func (h *Handler) ProcessWaitlist(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	gameID := chi.URLParam(r, "gameID")
	n, err := h.roster.ProcessWaitlist(r.Context(), auth.Actor(), gameID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, waitlistRunView{GameID: gameID, Promoted: n})
}

func (h *Handler) Waitlist(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	items, err := h.roster.ListWaitlist(r.Context(), auth.Actor(), chi.URLParam(r, "gameID"))
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.List(w, r, toParticipantViews(items))
}

// PriorityStatus defaults to the caller; ?user_id= is for managers.
func (h *Handler) PriorityStatus(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	st, err := h.roster.GetUserPriorityStatus(r.Context(), auth.Actor(), chi.URLParam(r, "gameID"), userID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, st)
}

func (h *Handler) UpdateCapacity(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	var req capacityRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		handleErr(w, r, err)
		return
	}
	res, err := h.roster.UpdateCapacity(r.Context(), auth.Actor(), chi.URLParam(r, "gameID"), *req.MaxParticipants)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, res)
}

func (h *Handler) CancelGame(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	var req cancelGameRequest
	if err := decodeAndValidate(r, &req, true); err != nil {
		handleErr(w, r, err)
		return
	}
	gameID := chi.URLParam(r, "gameID")
	declined, err := h.roster.CancelGame(r.Context(), auth.Actor(), gameID, strings.TrimSpace(req.Reason))
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, cancelGameView{GameID: gameID, Status: "CANCELLED", Declined: declined})
}

func (h *Handler) RecordResults(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	var req resultsRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		handleErr(w, r, err)
		return
	}
	sum, err := h.roster.RecordResults(r.Context(), auth.Actor(), chi.URLParam(r, "gameID"), req.sheet())
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, sum)
}

func (h *Handler) SetPriorityOverride(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	var req overrideRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		handleErr(w, r, err)
		return
	}
	groupID := chi.URLParam(r, "groupID")
	userID := chi.URLParam(r, "userID")
	if err := h.roster.SetPriorityOverride(r.Context(), auth.Actor(), groupID, userID, req.Score); err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, map[string]any{
		"group_id": groupID,
		"user_id":  userID,
		"score":    req.Score,
	})
}
