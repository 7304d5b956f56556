package rest

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/baechuer/teamup/internal/domain"
	"github.com/baechuer/teamup/internal/transport/rest/response"
	"github.com/go-chi/chi/v5"
)

func (h *Handler) CreateSeries(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	var req createSeriesRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		handleErr(w, r, err)
		return
	}
	in, err := req.toDomain()
	if err != nil {
		handleErr(w, r, err)
		return
	}
	sr, err := h.series.CreateSeries(r.Context(), auth.Actor(), req.GroupID, in)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusCreated, toSeriesView(sr))
}

func (h *Handler) GetSeries(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	sr, err := h.series.GetSeries(r.Context(), auth.Actor(), chi.URLParam(r, "seriesID"))
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, toSeriesView(sr))
}

func (h *Handler) GenerateInstances(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	var req generateRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		handleErr(w, r, err)
		return
	}
	from, err := parseDate(req.From)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	to, err := parseDate(req.To)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	games, err := h.series.GenerateInstances(r.Context(), auth.Actor(), chi.URLParam(r, "seriesID"), from, to)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	status := http.StatusOK
	if len(games) > 0 {
		status = http.StatusCreated
	}
	response.Data(w, r, status, map[string]any{
		"items":   toGameViews(games),
		"created": len(games),
	})
}

// UpdateSeries edits the series; with "cascade": true template edits also
// reach future UPCOMING instances.
func (h *Handler) UpdateSeries(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	var req updateSeriesRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		handleErr(w, r, err)
		return
	}
	patch, err := req.toDomain()
	if err != nil {
		handleErr(w, r, err)
		return
	}
	res, err := h.series.UpdateSeries(r.Context(), auth.Actor(), chi.URLParam(r, "seriesID"), patch, req.Cascade)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, map[string]any{
		"series":            toSeriesView(res.Series),
		"instances_updated": res.InstancesUpdated,
		"promoted":          res.Promoted,
	})
}

func (h *Handler) UpdateFutureInstances(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	var req gamePatchRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		handleErr(w, r, err)
		return
	}
	res, err := h.series.UpdateFutureInstances(r.Context(), auth.Actor(), chi.URLParam(r, "seriesID"), req.toDomain())
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, res)
}

// DeleteSeries takes ?cascade=true to drop future UPCOMING instances too.
func (h *Handler) DeleteSeries(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	cascade := false
	if v := strings.TrimSpace(r.URL.Query().Get("cascade")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			handleErr(w, r, domain.ErrValidationMeta("invalid cascade", map[string]string{"cascade": "must be true or false"}))
			return
		}
		cascade = b
	}
	seriesID := chi.URLParam(r, "seriesID")
	removed, err := h.series.DeleteSeries(r.Context(), auth.Actor(), seriesID, cascade)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, map[string]any{
		"series_id":         seriesID,
		"cascade":           cascade,
		"instances_removed": removed,
	})
}
