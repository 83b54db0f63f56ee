package server

import (
	"net/http"

	"carekeeper/server/handler"
)

func Route(sessions *handler.Sessions, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", handler.NewAcceptHandler(sessions))
	mux.Handle("GET /healthz", handler.NewHealthHandler(sessions))
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}
