package domain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	appdomain "carekeeper/application/domain"
	"carekeeper/application/state"
)

const (
	DefaultWriteBuffer = 1024
	DefaultHeldPushes  = 16
	DefaultCloseGrace  = 5 * time.Second
)

type EndpointConfig struct {
	// HeldPushLimit はサブダイアログ中に保留するプッシュの上限。超えた分は古いものから捨てる。
	HeldPushLimit int

	// IdleTimeout を超えて入力のないセッションは閉じる。0 以下なら監視しない。
	IdleTimeout time.Duration

	// CloseGrace は終了後に残りの送信を待つ上限。読まない相手への書き込みはここで打ち切る。
	CloseGrace time.Duration

	Metrics state.MetricsRecorder
}

// SessionEndpoint は1接続分のプロトコル状態機械です。
// ownerLoop だけが状態を遷移させ writeCh に書き込むので、応答とプッシュが1フレームの中で混ざることはありません。
type SessionEndpoint struct {
	ctx    context.Context
	cancel context.CancelFunc

	session    *Session
	connection *Connection
	registry   *Registry
	service    AquariumService
	metrics    state.MetricsRecorder

	lines   chan string // readLoop -> ownerLoop
	writeCh chan []byte // ownerLoop -> writeLoop

	// ownerLoop だけが触る
	pushCh    <-chan Message
	pushFloor uint64
	subdialog SubdialogKind
	held      [][]byte
	heldLimit int

	idleTimeout time.Duration
	closeGrace  time.Duration

	heldCount atomic.Int32
	closed    atomic.Bool
}

func NewSessionEndpoint(ctx context.Context, session *Session, connection *Connection, registry *Registry, service AquariumService, cfg EndpointConfig) (*SessionEndpoint, error) {
	if ctx == nil || session == nil || connection == nil || registry == nil || service == nil {
		return nil, ErrInitializationFailed
	}
	heldLimit := cfg.HeldPushLimit
	if heldLimit <= 0 {
		heldLimit = DefaultHeldPushes
	}
	closeGrace := cfg.CloseGrace
	if closeGrace <= 0 {
		closeGrace = DefaultCloseGrace
	}
	ctx, cancel := context.WithCancel(ctx)
	return &SessionEndpoint{
		ctx:        ctx,
		cancel:     cancel,
		session:    session,
		connection: connection,
		registry:   registry,
		service:    service,
		metrics:    cfg.Metrics,
		lines:      make(chan string),
		writeCh:    make(chan []byte, DefaultWriteBuffer),
		heldLimit:  heldLimit,

		idleTimeout: cfg.IdleTimeout,
		closeGrace:  closeGrace,
	}, nil
}

func (se *SessionEndpoint) Session() *Session { return se.session }

// PendingPushes はサブダイアログの終了待ちで保留中のプッシュ数を返します。
func (se *SessionEndpoint) PendingPushes() int { return int(se.heldCount.Load()) }

// Run は接続が閉じるまでブロックします。
func (se *SessionEndpoint) Run() error {
	eg, ctx := errgroup.WithContext(se.ctx)
	eg.Go(func() error {
		se.ownerLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.readLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.writeLoop(ctx)
		return nil
	})
	if se.idleTimeout > 0 {
		eg.Go(func() error {
			NewIdleWatchdog(se.idleTimeout, se.session, se.close).Run(ctx)
			return nil
		})
	}
	return eg.Wait()
}

// ForceClose はサーバー停止時などに外側から接続を閉じます。後始末は ownerLoop が行います。
func (se *SessionEndpoint) ForceClose() {
	se.close()
}

func (se *SessionEndpoint) ownerLoop(ctx context.Context) {
	defer se.terminate(ctx)

	se.send(ctx, EncodeLines(MsgWelcome))
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-se.lines:
			if !ok {
				return
			}
			se.session.TouchRead()
			if !se.handleLine(ctx, line) {
				return
			}
		case msg, ok := <-se.pushCh:
			if !ok {
				se.pushCh = nil
				continue
			}
			se.deliverPush(ctx, msg)
		}
	}
}

func (se *SessionEndpoint) readLoop(ctx context.Context) {
	defer close(se.lines)
	for {
		line, err := se.connection.ReadLine(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.DebugContext(ctx, "read loop ended", "session_id", se.session.ID(), "err", err)
			}
			return
		}
		select {
		case se.lines <- line:
		case <-ctx.Done():
			return
		}
	}
}

// writeLoop は writeCh が閉じられるまで書き込み、最後に接続を閉じます。
func (se *SessionEndpoint) writeLoop(ctx context.Context) {
	defer se.close()
	for data := range se.writeCh {
		if err := se.connection.Write(ctx, data); err != nil {
			if ctx.Err() == nil {
				slog.WarnContext(ctx, "write failed", "session_id", se.session.ID(), "err", err)
			}
			return
		}
		se.session.TouchWrite()
	}
}

func (se *SessionEndpoint) handleLine(ctx context.Context, line string) bool {
	switch se.session.State() {
	case StateAwaitingLogin:
		se.handleLogin(ctx, line)
		return true
	case StateActive:
		return se.handleCommand(ctx, line)
	case StateAwaitingSubdialog:
		se.handleSubdialog(ctx, line)
		return true
	default:
		return false
	}
}

func (se *SessionEndpoint) handleLogin(ctx context.Context, line string) {
	reg, err := se.registry.Register(ctx, se.session.ID(), line)
	if err != nil {
		slog.InfoContext(ctx, "login failed", "session_id", se.session.ID(), "err", err)
		se.count(ctx, "logins.failed")
		se.send(ctx, EncodeLoginFail(loginFailReason(err)))
		return
	}
	se.session.setUsername(reg.Username)
	se.pushCh = reg.Pushes
	se.pushFloor = reg.JoinSeq
	se.session.setState(StateActive)
	se.count(ctx, "logins.succeeded")
	slog.InfoContext(ctx, "login succeeded", "session_id", se.session.ID(), "username", reg.Username)
	se.send(ctx, EncodeLoginSuccess(reg.Username))
}

// handleCommand は1コマンドを実行します。セッションを終了する場合は false を返します。
func (se *SessionEndpoint) handleCommand(ctx context.Context, line string) bool {
	username := se.session.Username()
	cmd := ParseCommand(line)
	se.count(ctx, "commands."+strings.ReplaceAll(cmd.String(), "-", "_"))

	switch cmd {
	case CommandAddFish:
		fish, err := se.service.AddFish(ctx, username, "")
		if err != nil {
			se.reply(ctx, ErrorMessage(err))
			return true
		}
		se.reply(ctx, fmt.Sprintf("Added %s to your tank!", fish))
	case CommandViewFish:
		fish, err := se.service.ViewFish(ctx, username)
		if err != nil {
			se.reply(ctx, ErrorMessage(err))
			return true
		}
		se.send(ctx, renderFishList(fish))
	case CommandFeedFish:
		fed, err := se.service.FeedAll(ctx, username)
		switch {
		case err != nil:
			se.reply(ctx, ErrorMessage(err))
		case fed == 0:
			se.reply(ctx, "You have no living fish to feed.")
		default:
			se.reply(ctx, fmt.Sprintf("Fed %d fish. They are back to full health!", fed))
		}
	case CommandRemoveFish:
		se.beginRemoveFish(ctx, username)
	case CommandCleanTank:
		level := se.service.CleanTank(ctx)
		se.reply(ctx, fmt.Sprintf("Tank cleaned! Cleanliness is now %.2f%%.", level))
	case CommandViewTank:
		summary, err := se.service.ViewTank(ctx, username)
		if err != nil {
			se.reply(ctx, ErrorMessage(err))
			return true
		}
		se.reply(ctx, summary)
	case CommandGetFishFact:
		fact, err := se.service.FishFact(ctx)
		if err != nil {
			slog.WarnContext(ctx, "fish fact fetch failed", "session_id", se.session.ID(), "err", err)
			se.reply(ctx, ErrorMessage(err))
			return true
		}
		se.reply(ctx, "Fish fact: "+fact)
	case CommandQuit:
		se.send(ctx, EncodeGoodbye(username))
		return false
	default:
		se.reply(ctx, MsgUnknownCommand)
	}
	return true
}

// beginRemoveFish は名前一覧を送り、一覧がある場合だけ選択待ちに遷移します。
func (se *SessionEndpoint) beginRemoveFish(ctx context.Context, username string) {
	names, err := se.service.FishNames(ctx, username)
	if err != nil {
		se.send(ctx, EncodeLines(MarkerFishListError))
		return
	}
	se.send(ctx, EncodeFishList(names))
	if len(names) == 0 {
		return
	}
	se.subdialog = SubdialogRemoveFish
	se.session.setState(StateAwaitingSubdialog)
}

func (se *SessionEndpoint) handleSubdialog(ctx context.Context, line string) {
	defer se.resolveSubdialog(ctx)

	switch se.subdialog {
	case SubdialogRemoveFish:
		if IsCancel(line) {
			se.reply(ctx, MsgCancelled)
			return
		}
		fish, err := se.service.RemoveFish(ctx, se.session.Username(), line)
		if err != nil {
			se.reply(ctx, ErrorMessage(err))
			return
		}
		se.reply(ctx, fmt.Sprintf("Removed %s from your tank.", fish.Name()))
	default:
		slog.WarnContext(ctx, "line received in unknown subdialog", "session_id", se.session.ID(), "kind", se.subdialog)
	}
}

// resolveSubdialog は Active に戻し、保留していたプッシュを順に送ります。
func (se *SessionEndpoint) resolveSubdialog(ctx context.Context) {
	se.subdialog = SubdialogNone
	se.session.setState(StateActive)
	held := se.held
	se.held = nil
	se.heldCount.Store(0)
	for _, data := range held {
		se.send(ctx, data)
	}
}

func (se *SessionEndpoint) deliverPush(ctx context.Context, msg Message) {
	// 参加より前のイベントは同名の前ユーザー宛て
	if msg.Seq < se.pushFloor {
		se.count(ctx, "pushes.stale")
		slog.DebugContext(ctx, "stale push dropped", "session_id", se.session.ID(), "seq", msg.Seq, "join_seq", se.pushFloor)
		return
	}
	switch se.session.State() {
	case StateActive:
		se.send(ctx, msg.Data)
	case StateAwaitingSubdialog:
		if len(se.held) >= se.heldLimit {
			se.held = se.held[1:]
			se.count(ctx, "pushes.held_dropped")
		}
		se.held = append(se.held, msg.Data)
		se.heldCount.Store(int32(len(se.held)))
	}
}

func (se *SessionEndpoint) reply(ctx context.Context, line string) {
	se.send(ctx, EncodeLines(line))
}

func (se *SessionEndpoint) send(ctx context.Context, data []byte) {
	select {
	case se.writeCh <- data:
	default:
		slog.WarnContext(ctx, "closing session", "session_id", se.session.ID(), "err", ErrBackpressure)
		se.close()
	}
}

// terminate は ownerLoop の終了時に一度だけ呼ばれます。
func (se *SessionEndpoint) terminate(ctx context.Context) {
	se.session.setState(StateTerminated)
	if name := se.session.Username(); name != "" {
		se.registry.Unregister(context.WithoutCancel(ctx), name)
	}
	se.held = nil
	se.heldCount.Store(0)
	close(se.writeCh)
	time.AfterFunc(se.closeGrace, func() {
		if !se.closed.Load() {
			slog.WarnContext(ctx, "close grace expired, dropping unsent output", "session_id", se.session.ID())
			se.close()
		}
	})
	slog.InfoContext(ctx, "session terminated", "session_id", se.session.ID(), "username", se.session.Username())
}

func (se *SessionEndpoint) close() {
	if !se.closed.CompareAndSwap(false, true) {
		return
	}
	se.cancel()
	se.session.Close()
	se.connection.Close(CloseNormal, "")
}

func (se *SessionEndpoint) count(ctx context.Context, name string) {
	if se.metrics != nil {
		se.metrics.IncrementCounter(ctx, name, 1)
	}
}

func renderFishList(fish []appdomain.Fish) []byte {
	if len(fish) == 0 {
		return EncodeLines("You have no fish. Use add-fish to get one!")
	}
	lines := make([]string, 0, len(fish)+1)
	lines = append(lines, fmt.Sprintf("Your fish (%d/%d):", len(fish), appdomain.MaxFish))
	for _, f := range fish {
		lines = append(lines, "- "+f.String())
	}
	return EncodeLines(lines...)
}
