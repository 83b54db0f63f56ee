package adaptertcp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"time"

	"carekeeper/server/domain"
)

// MaxLineBytes は1行の最大長です。超えた行を受け取ると Read はエラーを返します。
const MaxLineBytes = 64 * 1024

var ErrLineTooLong = errors.New("tcp: line too long")

// tcpTransport は改行区切りのテキストを1フレームとして読み書きします。
type tcpTransport struct {
	conn    net.Conn
	scanner *bufio.Scanner
}

func NewTransportFrom(conn net.Conn) domain.Transport {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), MaxLineBytes)
	return &tcpTransport{conn: conn, scanner: scanner}
}

// Read は次の1行を返します。ctx がキャンセルされると読み込み期限を過去に設定してブロックを解除します。
func (t *tcpTransport) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if t.scanner.Scan() {
		line := t.scanner.Bytes()
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := t.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, ErrLineTooLong
		}
		return nil, err
	}
	return nil, io.EOF
}

// Write はフレームの末尾に改行を付けて書き込みます。
func (t *tcpTransport) Write(ctx context.Context, data []byte) error {
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	frame := make([]byte, 0, len(data)+1)
	frame = append(frame, data...)
	frame = append(frame, '\n')
	if _, err := t.conn.Write(frame); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Close は接続を閉じます。TCP には終了コードがないので code と reason は使いません。
func (t *tcpTransport) Close(code int32, reason string) error {
	return t.conn.Close()
}
