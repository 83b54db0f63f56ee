package handler

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	adapterwebsocket "carekeeper/server/adapter/websocket"
)

// AcceptHandler は websocket 接続を受け付け、TCP と同じ行プロトコルのセッションを開始します。
type AcceptHandler struct {
	sessions *Sessions
}

func NewAcceptHandler(sessions *Sessions) *AcceptHandler {
	return &AcceptHandler{sessions: sessions}
}

func (h *AcceptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // 開発用: Origin チェックをスキップ
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to accept", "err", err)
		return
	}

	if err := h.sessions.Serve(ctx, adapterwebsocket.NewTransportFrom(conn)); err != nil {
		slog.ErrorContext(ctx, "failed to run session endpoint", "err", err)
	}
}
