package domain

import (
	"context"
)

//go:generate go tool mockgen -destination=./mocks/transport_mock.go -package=mocks . Transport

// Transport は Connection（物理接続）が依存するI/O境界です。
// Read は1フレーム（1行）を返し、Write は1フレームを書き込みます。
type Transport interface {
	Read(ctx context.Context) (data []byte, err error)
	Write(ctx context.Context, data []byte) error
	Close(code int32, reason string) error
}

// Close コードは WebSocket のステータスコードに合わせる。
const (
	CloseNormal    int32 = 1000
	CloseGoingAway int32 = 1001
	CloseInternal  int32 = 1011
)
