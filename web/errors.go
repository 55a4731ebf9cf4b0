package web

import "net/http"

// ErrorResponse is the type for our error responses
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteError writes a JSON error response with the passed in status
func WriteError(w http.ResponseWriter, status int, err error) error {
	return WriteJSON(w, status, &ErrorResponse{Error: err.Error()})
}
