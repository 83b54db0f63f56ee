package handler

import (
	"context"
	"log/slog"
	"net"

	adaptertcp "carekeeper/server/adapter/tcp"
)

// LineHandler は TCP 接続1本ごとに行プロトコルのセッションを実行します。
type LineHandler struct {
	sessions *Sessions
}

func NewLineHandler(sessions *Sessions) *LineHandler {
	return &LineHandler{sessions: sessions}
}

func (h *LineHandler) ServeConn(ctx context.Context, conn net.Conn) {
	slog.DebugContext(ctx, "accepted tcp connection", "remote", conn.RemoteAddr().String())
	if err := h.sessions.Serve(ctx, adaptertcp.NewTransportFrom(conn)); err != nil {
		slog.ErrorContext(ctx, "failed to run session endpoint", "remote", conn.RemoteAddr().String(), "err", err)
	}
}
