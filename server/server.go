package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// Server は websocket とメトリクスを提供する HTTP サーバーです。
type Server struct {
	HTTP *http.Server
}

func NewServer(addr string, handler http.Handler) *Server {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &Server{
		HTTP: httpServer,
	}
}

// Serve は Shutdown されると nil を返します。
func (s *Server) Serve() error {
	if err := s.HTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
func (s *Server) Shutdown(ctx context.Context) error { return s.HTTP.Shutdown(ctx) }
func (s *Server) Close() error                       { return s.HTTP.Close() }
func (s *Server) Addr() string                       { return s.HTTP.Addr }

// ConnHandler は受け付けた TCP 接続を切断まで処理します。
type ConnHandler interface {
	ServeConn(ctx context.Context, conn net.Conn)
}

// LineServer は改行区切りプロトコルの TCP サーバーです。接続ごとにゴルーチンを1つ起動します。
type LineServer struct {
	addr    string
	handler ConnHandler

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	ready    chan struct{}
	wg       sync.WaitGroup
}

func NewLineServer(addr string, handler ConnHandler) *LineServer {
	return &LineServer{
		addr:    addr,
		handler: handler,
		conns:   make(map[net.Conn]struct{}),
		ready:   make(chan struct{}),
	}
}

// Serve は待ち受けを開始し、Shutdown されるまで接続を受け付けます。Shutdown 後は nil を返します。
func (s *LineServer) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.listener = ln
	close(s.ready)
	s.mu.Unlock()
	slog.InfoContext(ctx, "line server listening", "addr", ln.Addr().String())

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				delay = min(max(2*delay, 5*time.Millisecond), time.Second)
				slog.WarnContext(ctx, "accept failed, retrying", "err", err, "delay", delay)
				time.Sleep(delay)
				continue
			}
			return err
		}
		delay = 0
		if !s.track(conn) {
			_ = conn.Close()
			return nil
		}
		go func() {
			defer s.untrack(conn)
			s.handler.ServeConn(ctx, conn)
		}()
	}
}

// Ready は待ち受けが始まると閉じられます。
func (s *LineServer) Ready() <-chan struct{} { return s.ready }

// Addr は待ち受け中のアドレスを返します。待ち受け前は設定値を返します。
func (s *LineServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown は新規受付を止め、残っている接続を閉じて処理の終了を待ちます。
func (s *LineServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for conn := range s.conns {
		_ = conn.Close()
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

func (s *LineServer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *LineServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *LineServer) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
	s.wg.Done()
}
