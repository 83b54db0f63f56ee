package adapterwebsocket

import (
	"context"
	"strings"

	"github.com/coder/websocket"

	"carekeeper/server/domain"
)

// wsTransport は websocket のテキストメッセージ1通を1行として扱います。
type wsTransport struct {
	conn *websocket.Conn
}

func NewTransportFrom(conn *websocket.Conn) domain.Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	// ブラウザが改行付きで送ってきても1行として扱う
	return []byte(strings.TrimRight(string(data), "\r\n")), nil
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Close(code int32, reason string) error {
	return t.conn.Close(websocket.StatusCode(code), reason)
}
