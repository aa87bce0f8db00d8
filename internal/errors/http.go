package errors

import (
	"encoding/json"
	"net/http"
)

// HTTPErrorResponse wraps a ShieldError for HTTP JSON responses.
type HTTPErrorResponse struct {
	Error ShieldError `json:"error"`
}

// WriteHTTPError writes a ShieldError as an HTTP JSON response.
func WriteHTTPError(w http.ResponseWriter, err *ShieldError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	json.NewEncoder(w).Encode(HTTPErrorResponse{Error: *err})
}
