package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Camus10737/warket/internal/service"
	"github.com/Camus10737/warket/internal/store"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// writeServiceError maps engine errors onto HTTP statuses with stable
// machine-readable codes. Conflicting workflow states are all 409 so
// clients can retry or surface the code, but not repeat side effects.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		validation *service.ValidationError
		transition *service.InvalidTransitionError
		state      *service.InvalidStateError
		stock      *service.InsufficientStockError
		conflict   *service.StockConflictError
		concurrent *service.ConcurrentModificationError
		processed  *service.AlreadyProcessedError
		terminal   *service.TerminalStateError
	)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "invalid_request", validation.Error())
	case errors.As(err, &processed):
		writeError(w, http.StatusConflict, "already_processed", processed.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, "stock_conflict", conflict.Error())
	case errors.As(err, &stock):
		writeError(w, http.StatusConflict, "insufficient_stock", stock.Error())
	case errors.As(err, &transition):
		writeError(w, http.StatusConflict, "invalid_transition", transition.Error())
	case errors.As(err, &terminal):
		writeError(w, http.StatusConflict, "terminal_state", terminal.Error())
	case errors.As(err, &state):
		writeError(w, http.StatusConflict, "invalid_state", state.Error())
	case errors.As(err, &concurrent):
		writeError(w, http.StatusConflict, "concurrent_modification", concurrent.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
