package handler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"carekeeper/server/domain"
)

// Dependencies はセッションを動かすのに必要な共有オブジェクトです。
type Dependencies struct {
	Registry *domain.Registry
	Service  domain.AquariumService
	Endpoint domain.EndpointConfig
}

// Sessions は TCP と websocket の両方のセッションを追跡し、停止時にまとめて閉じます。
type Sessions struct {
	deps Dependencies

	mu        sync.Mutex
	endpoints map[*domain.SessionEndpoint]struct{}
	closing   bool
	wg        sync.WaitGroup
}

// ErrShuttingDown は停止処理の開始後に接続が来た場合に返されます。
var ErrShuttingDown = errors.New("handler: server is shutting down")

func NewSessions(deps Dependencies) *Sessions {
	return &Sessions{
		deps:      deps,
		endpoints: make(map[*domain.SessionEndpoint]struct{}),
	}
}

// Serve は transport 上でセッションを実行し、切断されるまでブロックします。
func (s *Sessions) Serve(ctx context.Context, transport domain.Transport) error {
	session := domain.NewSession()
	connection := domain.NewConnection(session.ID(), transport)
	endpoint, err := domain.NewSessionEndpoint(ctx, session, connection, s.deps.Registry, s.deps.Service, s.deps.Endpoint)
	if err != nil {
		_ = transport.Close(domain.CloseInternal, "internal error")
		return err
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		endpoint.ForceClose()
		return ErrShuttingDown
	}
	s.endpoints[endpoint] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.endpoints, endpoint)
		s.mu.Unlock()
		s.wg.Done()
	}()

	slog.InfoContext(ctx, "session accepted", "session_id", session.ID())
	return endpoint.Run()
}

// Live は実行中のセッション数を返します。
func (s *Sessions) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.endpoints)
}

// CloseAll は全セッションを閉じ、後始末が終わるか ctx が終わるまで待ちます。
func (s *Sessions) CloseAll(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for endpoint := range s.endpoints {
		endpoint.ForceClose()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
