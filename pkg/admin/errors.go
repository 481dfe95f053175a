package admin

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/varmock/varmock/pkg/httputil"
	"github.com/varmock/varmock/pkg/mocks"
	"github.com/varmock/varmock/pkg/settings"
)

// Messages returned to clients when an error carries no safe detail.
const (
	ErrMsgInvalidJSON     = "Invalid JSON in request body"
	ErrMsgOperationFailed = "Operation failed"
)

func writeError(w http.ResponseWriter, status int, message string) {
	httputil.WriteError(w, status, message)
}

// errorStatus maps control-plane errors to a status and a message safe to
// return. Unknown errors are logged and reported generically.
func errorStatus(err error, log *slog.Logger, operation string) (int, string) {
	switch {
	case errors.Is(err, mocks.ErrVariantNotFound),
		errors.Is(err, settings.ErrUnknownKey),
		errors.Is(err, settings.ErrInvalidValue):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, mocks.ErrNoActiveMock):
		return http.StatusConflict, err.Error()
	}
	log.Error("admin operation failed", "operation", operation, "error", err)
	return http.StatusInternalServerError, ErrMsgOperationFailed
}
