package domain

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type SessionID uuid.UUID

func NewSessionID() SessionID { return SessionID(uuid.New()) }

func (id SessionID) String() string { return uuid.UUID(id).String() }

// Session は1接続の論理的な状態を表す構造体です。
// 状態の遷移は SessionEndpoint の ownerLoop だけが行い、他のゴルーチンは読み取りのみ行います。
type Session struct {
	id SessionID

	username atomic.Pointer[string]
	state    atomic.Uint32

	// activity
	lastRead  atomic.Int64
	lastWrite atomic.Int64

	// lifecycle
	closed atomic.Bool
}

func NewSession() *Session {
	s := &Session{id: NewSessionID()}
	now := time.Now().UnixNano()
	s.lastRead.Store(now)
	s.lastWrite.Store(now)
	s.state.Store(uint32(StateAwaitingLogin))
	return s
}

func (s *Session) ID() SessionID { return s.id }

// Username はログイン前は空文字を返します。
func (s *Session) Username() string {
	if p := s.username.Load(); p != nil {
		return *p
	}
	return ""
}

func (s *Session) setUsername(name string) { s.username.Store(&name) }

func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

func (s *Session) setState(st SessionState) { s.state.Store(uint32(st)) }

func (s *Session) TouchRead() {
	s.lastRead.Store(time.Now().UnixNano())
}

func (s *Session) TouchWrite() {
	s.lastWrite.Store(time.Now().UnixNano())
}

// LastRead はクライアントから最後に行を受け取った時刻を返します。
func (s *Session) LastRead() time.Time {
	return time.Unix(0, s.lastRead.Load())
}

// LastActivity は最後に読み書きした時刻を返します。
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, max(s.lastRead.Load(), s.lastWrite.Load()))
}

func (s *Session) Close() bool {
	return s.closed.CompareAndSwap(false, true)
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}
