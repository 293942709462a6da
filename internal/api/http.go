package api

import (
	"encoding/json"
	"net/http"
)

// WriteJSON sends v as the response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError sends the {"error", "message"} body every non-2xx response uses.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, map[string]string{"error": code, "message": message})
}

// PromptPreview cuts prompt to at most max runes for listings.
func PromptPreview(prompt string, max int) string {
	r := []rune(prompt)
	if len(r) <= max {
		return prompt
	}
	return string(r[:max]) + "..."
}
