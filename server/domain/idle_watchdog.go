package domain

import (
	"context"
	"log/slog"
	"time"
)

// IdleWatchdog はクライアントから一定時間入力がないセッションを閉じる監視サービスです。
// サーバーからのプッシュは活動とみなしません。
type IdleWatchdog struct {
	timeout  time.Duration
	interval time.Duration
	session  *Session
	onIdle   func()
}

// NewIdleWatchdog は新しい IdleWatchdog を生成します。確認間隔は timeout の 1/4 です。
func NewIdleWatchdog(timeout time.Duration, session *Session, onIdle func()) *IdleWatchdog {
	return &IdleWatchdog{
		timeout:  timeout,
		interval: max(timeout/4, time.Millisecond),
		session:  session,
		onIdle:   onIdle,
	}
}

// Run は interval ごとに最終入力時刻を確認し、timeout を超えていれば onIdle を呼んで終了します。
// ctx がキャンセルされると終了します。
func (w *IdleWatchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idle := time.Since(w.session.LastRead())
			if idle < w.timeout {
				continue
			}
			slog.InfoContext(ctx, "idle watchdog: closing idle session", "session_id", w.session.ID(), "idle", idle)
			w.onIdle()
			return
		}
	}
}
