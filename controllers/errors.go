package controllers

import (
	"errors"
	"net/http"

	"github.com/ichikitsu-lab/OrderingSystem/services"
)

// statusForError memetakan error precondition dispatcher ke kode HTTP.
func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrTableNotFound),
		errors.Is(err, services.ErrMenuItemNotFound),
		errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrHistoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrTableNotAvailable),
		errors.Is(err, services.ErrTableNotOccupied),
		errors.Is(err, services.ErrTableHasOrders),
		errors.Is(err, services.ErrNoOpenOrders),
		errors.Is(err, services.ErrMenuItemInactive):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
