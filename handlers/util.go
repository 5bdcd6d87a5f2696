package handlers

import (
	"encoding/json"
	"net/http"

	log "github.com/spf13/jwalterweatherman"
)

func SetHeader(w http.ResponseWriter, name string, value string) {
	w.Header().Set(name, value)
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	SetHeader(w, "Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.ERROR.Printf("Unable to serialize response: %v", err)
	}
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}
