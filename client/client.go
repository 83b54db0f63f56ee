// Package client は行プロトコルを話す TCP クライアントです。負荷試験ボットと結合テストから使います。
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"carekeeper/server/domain"
)

var (
	ErrLoginFailed = errors.New("client: login failed")
	ErrNoFish      = errors.New("client: no fish to remove")
	ErrUnexpected  = errors.New("client: unexpected response")
)

// ErrMultiLine は複数行で応答するコマンドを Do に渡したときに返します。View を使ってください。
var ErrMultiLine = errors.New("client: command replies with multiple lines")

// Client は1接続分のクライアントです。並行に使うことはできません。
type Client struct {
	conn net.Conn
	r    *bufio.Reader

	// Pushes は読み飛ばした STATUS_UPDATE ブロックの数です。
	Pushes int
}

// Dial は接続してウェルカム行を読みます。
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c := &Client{conn: conn, r: bufio.NewReader(conn)}
	line, err := c.readLine(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if line != domain.MsgWelcome {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %q", ErrUnexpected, line)
	}
	return c, nil
}

// Login はログインし、失敗した場合はサーバーの理由を含む ErrLoginFailed を返します。
func (c *Client) Login(ctx context.Context, name string) error {
	if err := c.send(ctx, name); err != nil {
		return err
	}
	marker, err := c.readLine(ctx)
	if err != nil {
		return err
	}
	detail, err := c.readLine(ctx)
	if err != nil {
		return err
	}
	switch marker {
	case domain.MarkerLoginSuccessful:
		return nil
	case domain.MarkerLoginFail:
		return fmt.Errorf("%w: %s", ErrLoginFailed, detail)
	default:
		return fmt.Errorf("%w: %q", ErrUnexpected, marker)
	}
}

// Do は1行で応答するコマンドを送り、応答を返します。
// view-fish と view-tank は応答が複数行なので送らずに ErrMultiLine を返します。
func (c *Client) Do(ctx context.Context, command string) (string, error) {
	switch domain.ParseCommand(command) {
	case domain.CommandViewFish, domain.CommandViewTank:
		return "", fmt.Errorf("%w: %s", ErrMultiLine, strings.TrimSpace(command))
	}
	return c.roundTrip(ctx, command)
}

func (c *Client) roundTrip(ctx context.Context, line string) (string, error) {
	if err := c.send(ctx, line); err != nil {
		return "", err
	}
	return c.readLine(ctx)
}

// View は view-fish か view-tank を送り、応答の全行を返します。
// 応答に終端マーカーはないので、見出しの件数から残りの行数を決めます。
func (c *Client) View(ctx context.Context, command string) ([]string, error) {
	cmd := domain.ParseCommand(command)
	if cmd != domain.CommandViewFish && cmd != domain.CommandViewTank {
		return nil, fmt.Errorf("%w: %q is not a view command", ErrUnexpected, command)
	}
	if err := c.send(ctx, command); err != nil {
		return nil, err
	}
	first, err := c.readLine(ctx)
	if err != nil {
		return nil, err
	}
	lines := []string{first}
	if cmd == domain.CommandViewFish {
		var n, limit int
		if _, err := fmt.Sscanf(first, "Your fish (%d/%d):", &n, &limit); err != nil {
			// 魚なし、またはエラーの1行
			return lines, nil
		}
		return c.readN(ctx, lines, n)
	}

	if !strings.HasPrefix(first, "Tank Cleanliness:") {
		return lines, nil
	}
	// Users Online, Points, Living Fish 見出し
	if lines, err = c.readN(ctx, lines, 3); err != nil {
		return nil, err
	}
	var living, limit int
	if _, err := fmt.Sscanf(lines[3], "Living Fish (%d/%d):", &living, &limit); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnexpected, lines[3])
	}
	if lines, err = c.readN(ctx, lines, max(living, 1)+1); err != nil {
		return nil, err
	}
	var dead int
	header := lines[len(lines)-1]
	if _, err := fmt.Sscanf(header, "Dead Fish (%d):", &dead); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnexpected, header)
	}
	return c.readN(ctx, lines, max(dead, 1))
}

func (c *Client) readN(ctx context.Context, lines []string, n int) ([]string, error) {
	for range n {
		line, err := c.readLine(ctx)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// RemoveFirstFish は一覧の先頭の魚を取り除き、サーバーの応答を返します。
func (c *Client) RemoveFirstFish(ctx context.Context) (string, error) {
	if err := c.send(ctx, "remove-fish"); err != nil {
		return "", err
	}
	marker, err := c.readLine(ctx)
	if err != nil {
		return "", err
	}
	switch marker {
	case domain.MarkerFishListEmpty:
		return "", ErrNoFish
	case domain.MarkerFishListStart:
	default:
		return "", fmt.Errorf("%w: %q", ErrUnexpected, marker)
	}

	var names []string
	for {
		line, err := c.readLine(ctx)
		if err != nil {
			return "", err
		}
		if line == domain.MarkerFishListEnd {
			break
		}
		names = append(names, line)
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w: empty fish list", ErrUnexpected)
	}
	return c.roundTrip(ctx, names[0])
}

// Quit はログアウトして接続を閉じます。
func (c *Client) Quit(ctx context.Context) (string, error) {
	defer c.conn.Close()
	return c.roundTrip(ctx, "quit")
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) send(ctx context.Context, line string) error {
	stop := c.deadline(ctx)
	defer stop()
	_, err := c.conn.Write([]byte(line + "\n"))
	return err
}

// readLine は次の1行を返します。STATUS_UPDATE ブロックは読み飛ばします。
func (c *Client) readLine(ctx context.Context) (string, error) {
	stop := c.deadline(ctx)
	defer stop()
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if line != domain.MarkerStatusUpdateStart {
			return line, nil
		}
		for {
			inner, err := c.r.ReadString('\n')
			if err != nil {
				return "", err
			}
			if strings.TrimRight(inner, "\r\n") == domain.MarkerStatusUpdateEnd {
				break
			}
		}
		c.Pushes++
	}
}

// deadline は ctx の期限を接続に設定し、キャンセル時には即座に期限切れにします。
func (c *Client) deadline(ctx context.Context) func() bool {
	if d, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(d)
	} else {
		_ = c.conn.SetDeadline(time.Time{})
	}
	return context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
}
