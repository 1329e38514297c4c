package app

import (
	"encoding/json"
	"net/http"
)

// writeJSON writes v as a JSON response with the given status.
func (a *Application) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.Logger.Printf("writing response: %v", err)
	}
}

// errorBody is the common error payload shape.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (a *Application) writeError(w http.ResponseWriter, status int, errText, message string) {
	a.writeJSON(w, status, errorBody{Error: errText, Message: message})
}
