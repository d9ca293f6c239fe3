package httppresentation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Zhima-Mochi/supershop/internal/application"
	"github.com/Zhima-Mochi/supershop/internal/domain/catalog"
	"github.com/Zhima-Mochi/supershop/internal/domain/inventory"
	"github.com/Zhima-Mochi/supershop/internal/observability"
	"github.com/Zhima-Mochi/supershop/internal/observability/logctx"
)

const msgInternal = "internal server error"

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeError(w http.ResponseWriter, _ *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Message: msg})
}

// writeDomainError maps use case errors to status codes. Storage and unexpected
// failures are logged and answered with a generic message.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		h.writeError(w, r, http.StatusNotFound, "product not found")
	case errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, application.ErrValidation):
		h.writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, application.ErrConflict):
		h.writeError(w, r, http.StatusConflict, err.Error())
	default:
		logctx.FromOr(r.Context(), h.log).Error("request_failed",
			observability.F("route", routeFromContext(r.Context())),
			observability.F("error", err.Error()),
		)
		h.writeError(w, r, http.StatusInternalServerError, msgInternal)
	}
}
