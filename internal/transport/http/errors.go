package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cwrk-planet/meet-service/internal/domain"
	httpmw "github.com/cwrk-planet/meet-service/internal/transport/http/middleware"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ToHTTP — статус и машинный код по категории доменной ошибки.
func ToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrRoomInactive):
		return http.StatusGone, "room_inactive"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	status, code := ToHTTP(err)
	msg := err.Error()
	if status >= 500 {
		httpmw.L(ctx).Error(op, slog.Any("err", err))
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	} else {
		httpmw.L(ctx).Debug(op, slog.Any("err", err))
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}
