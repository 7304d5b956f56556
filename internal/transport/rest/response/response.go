// Package response writes the API's JSON envelopes.
package response

import (
	"net/http"

	"github.com/go-chi/render"
)

// Envelope wraps every successful payload as {"data": ...}.
type Envelope struct {
	Data any `json:"data,omitempty"`
}

// Page is the shape of list payloads.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

type ErrorBody struct {
	Error ErrorPayload `json:"error"`
}

type ErrorPayload struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Meta      map[string]string `json:"meta,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

func Data(w http.ResponseWriter, r *http.Request, status int, payload any) {
	render.Status(r, status)
	render.JSON(w, r, Envelope{Data: payload})
}

// List writes {"data":{"items":[...],"total":n}}; a nil slice renders as [].
func List[T any](w http.ResponseWriter, r *http.Request, items []T) {
	if items == nil {
		items = []T{}
	}
	Data(w, r, http.StatusOK, Page[T]{Items: items, Total: len(items)})
}

func Fail(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string, requestID string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorBody{Error: ErrorPayload{
		Code:      code,
		Message:   message,
		Meta:      meta,
		RequestID: requestID,
	}})
}
