package handlers

import (
	"log/slog"
	"net/http"

	"ticket-engine/internal/status"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// apiError maps an engine error to the pocketbase API error for its kind.
func apiError(err error) error {
	switch kind := status.KindOf(err); kind {
	case status.KindInvalidArgument:
		return apis.NewBadRequestError(err.Error(), nil)
	case status.KindNotFound:
		return apis.NewNotFoundError(err.Error(), nil)
	case status.KindContention:
		return apis.NewApiError(http.StatusServiceUnavailable, "Too many concurrent requests, try again", nil)
	case status.KindInternal:
		slog.Error("Request failed", "error", err)
		return apis.NewApiError(http.StatusInternalServerError, "Something went wrong while processing your request", nil)
	default:
		return apis.NewApiError(http.StatusConflict, err.Error(), nil)
	}
}

// customerID prefers the authenticated record over the id the client sent.
func customerID(e *core.RequestEvent, sent string) string {
	if e.Auth != nil {
		return e.Auth.Id
	}
	return sent
}
