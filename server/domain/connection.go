package domain

import (
	"context"
	"fmt"
	"strings"
)

type ConnectionID string

// Connection は物理的な接続を表します。フレームは改行を含まない1行のテキストです。
type Connection struct {
	SessionID    SessionID
	ConnectionID ConnectionID
	transport    Transport
}

func NewConnection(sessionID SessionID, transport Transport) *Connection {
	return &Connection{
		SessionID:    sessionID,
		ConnectionID: ConnectionID(sessionID.String()),
		transport:    transport,
	}
}

// ReadLine は1フレームを読み、末尾の CR/LF を取り除いて返します。
func (c *Connection) ReadLine(ctx context.Context) (string, error) {
	data, err := c.transport.Read(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func (c *Connection) Write(ctx context.Context, data []byte) error {
	if err := c.transport.Write(ctx, data); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	return nil
}

func (c *Connection) Close(code int32, reason string) {
	_ = c.transport.Close(code, reason)
}
