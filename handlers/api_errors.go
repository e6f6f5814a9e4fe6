package handlers

import "net/http"

// apiError is the error body for endpoints whose clients branch on a
// machine-readable code, such as the merge flow telling run_not_found
// apart from invalid_run_id. Simpler handlers answer with a bare
// {"error": ...} map.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Error: message, Code: code})
}
