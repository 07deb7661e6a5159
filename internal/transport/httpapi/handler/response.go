package handler

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/andrewinci/actual-sync/internal/shared/errors"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondAppError sends the error response matching an AppError
func respondAppError(w http.ResponseWriter, err *apperrors.AppError) {
	respondJSON(w, ErrorResponse{Error: err.ClientMessage(), Code: err.Code}, err.HTTPStatus())
}
