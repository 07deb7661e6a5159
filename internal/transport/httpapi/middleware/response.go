package middleware

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/andrewinci/actual-sync/internal/shared/errors"
)

// writeError sends err in the same JSON shape the handlers use
func writeError(w http.ResponseWriter, err *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus())
	json.NewEncoder(w).Encode(map[string]string{
		"error": err.ClientMessage(),
		"code":  err.Code,
	})
}
