package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"carekeeper/application/service"
	"carekeeper/application/simulation"
	"carekeeper/application/state/memory"
	"carekeeper/integration/fishfact"
	"carekeeper/internal/metrics"
	"carekeeper/server"
	"carekeeper/server/domain"
	"carekeeper/server/handler"
	"carekeeper/utils"
)

const shutdownTimeout = 10 * time.Second

func main() {
	setupLogger(utils.GetEnvDefault("LOG_LEVEL", "info"), utils.GetEnvDefault("LOG_FORMAT", "text"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.ErrorContext(ctx, "server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	addr := utils.GetEnvDefault("ADDR", "localhost")
	port := utils.GetEnvDefault("PORT", "8080")
	httpPort := utils.GetEnvDefault("HTTP_PORT", "9090")
	tickInterval := utils.GetEnvDuration("TICK_INTERVAL", simulation.DefaultInterval)
	pushBuffer := utils.GetEnvInt("PUSH_BUFFER", domain.DefaultSubscriberBuffer)
	idleTimeout := utils.GetEnvDuration("IDLE_TIMEOUT", 30*time.Minute)

	recorder := metrics.NewRecorder()

	// 配線順: pubsub -> notifier -> aquarium -> fact client -> service -> registry
	pubsub := domain.NewSimplePubSub(pushBuffer, recorder)
	notifier, err := domain.NewNotifier(pubsub, recorder, 0)
	if err != nil {
		return err
	}
	aquarium := memory.NewAquarium(memory.Config{
		Publisher:    notifier,
		Metrics:      recorder,
		BaselineSoil: memory.DefaultBaselineSoil,
	})
	facts, err := fishfact.NewClient(fishfact.Config{
		BaseURL: utils.GetEnvDefault("FACT_API_URL", fishfact.DefaultBaseURL),
		Timeout: utils.GetEnvDuration("FACT_TIMEOUT", fishfact.DefaultTimeout),
	})
	if err != nil {
		return err
	}
	svc, err := service.NewAquariumService(aquarium, recorder, service.SystemClock{}, service.SimpleValidator{}, facts)
	if err != nil {
		return err
	}
	registry, err := domain.NewRegistry(pubsub, svc, recorder)
	if err != nil {
		return err
	}
	clock, err := simulation.NewClock(tickInterval, aquarium, recorder)
	if err != nil {
		return err
	}

	sessions := handler.NewSessions(handler.Dependencies{
		Registry: registry,
		Service:  svc,
		Endpoint: domain.EndpointConfig{
			HeldPushLimit: pushBuffer,
			IdleTimeout:   idleTimeout,
			Metrics:       recorder,
		},
	})
	lineServer := server.NewLineServer(net.JoinHostPort(addr, port), handler.NewLineHandler(sessions))
	httpServer := server.NewServer(net.JoinHostPort(addr, httpPort), server.Route(sessions, recorder.Handler()))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return notifier.Run(egCtx) })
	eg.Go(func() error { return clock.Run(egCtx) })
	eg.Go(func() error { return lineServer.Serve(egCtx) })
	eg.Go(func() error {
		slog.InfoContext(ctx, "http server listening", "addr", httpServer.Addr())
		return httpServer.Serve()
	})
	eg.Go(func() error {
		<-egCtx.Done()
		slog.InfoContext(ctx, "shutdown initiated")
		shutdown(lineServer, httpServer, sessions)
		return nil
	})

	err = eg.Wait()
	slog.InfoContext(ctx, "server shutdown complete", "tick_interval", tickInterval)
	return err
}

// shutdown はセッションを閉じてからサーバーを止める。全体で shutdownTimeout までしか待たない。
func shutdown(lineServer *server.LineServer, httpServer *server.Server, sessions *handler.Sessions) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := lineServer.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "line server shutdown failed", "err", err)
	}
	if err := sessions.CloseAll(ctx); err != nil {
		slog.ErrorContext(ctx, "closing sessions failed", "err", err)
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "graceful shutdown failed", "err", err)
		if err := httpServer.Close(); err != nil {
			slog.ErrorContext(ctx, "forced close failed", "err", err)
		}
	}
}

func setupLogger(level, format string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid LOG_LEVEL %q, using info\n", level)
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}
