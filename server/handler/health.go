package handler

import (
	"encoding/json"
	"net/http"
)

// NewHealthHandler は稼働中のセッション数を添えて 200 を返します。
func NewHealthHandler(sessions *Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"sessions": sessions.Live(),
		})
	}
}
