package handler

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"carekeeper/application/service"
	"carekeeper/application/state/memory"
	"carekeeper/server/domain"
)

type stubFacts struct{}

func (stubFacts) Fetch(context.Context) (string, error) { return "fact", nil }

// chanTransport は Close されるまで Read をブロックする Transport。
type chanTransport struct {
	in     chan string
	out    chan string
	closed chan struct{}
	once   sync.Once
}

func newChanTransport() *chanTransport {
	return &chanTransport{in: make(chan string, 4), out: make(chan string, 64), closed: make(chan struct{})}
}

func (c *chanTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case line := <-c.in:
		return []byte(line), nil
	case <-c.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *chanTransport) Write(_ context.Context, data []byte) error {
	select {
	case c.out <- string(data):
		return nil
	case <-c.closed:
		return io.ErrClosedPipe
	}
}

func (c *chanTransport) Close(int32, string) error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func newTestSessions(t *testing.T) (*Sessions, *memory.Aquarium) {
	t.Helper()
	aquarium := memory.NewAquarium(memory.Config{Rand: rand.New(rand.NewPCG(1, 2)), BaselineSoil: memory.DefaultBaselineSoil})
	svc, err := service.NewAquariumService(aquarium, nopMetrics{}, service.SystemClock{}, service.SimpleValidator{}, stubFacts{})
	if err != nil {
		t.Fatalf("NewAquariumService returned error: %v", err)
	}
	registry, err := domain.NewRegistry(domain.NewSimplePubSub(0, nil), svc, nil)
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}
	return NewSessions(Dependencies{Registry: registry, Service: svc}), aquarium
}

type nopMetrics struct{}

func (nopMetrics) RecordLatency(context.Context, string, time.Duration)    {}
func (nopMetrics) RecordContention(context.Context, string, time.Duration) {}
func (nopMetrics) IncrementCounter(context.Context, string, int)           {}
func (nopMetrics) SetGauge(context.Context, string, float64)               {}

func TestSessions_CloseAllLogsEveryoneOut(t *testing.T) {
	sessions, aquarium := newTestSessions(t)
	ctx := context.Background()

	done := make(chan error, 2)
	for _, name := range []string{"Ann", "Bob"} {
		tr := newChanTransport()
		tr.in <- name
		go func() { done <- sessions.Serve(ctx, tr) }()
	}
	deadline := time.Now().Add(2 * time.Second)
	for aquarium.UserCount(ctx) != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("users did not log in")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if sessions.Live() != 2 {
		t.Fatalf("Live = %d, want 2", sessions.Live())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sessions.CloseAll(shutdownCtx); err != nil {
		t.Fatalf("CloseAll returned error: %v", err)
	}
	if aquarium.UserCount(ctx) != 0 || sessions.Live() != 0 {
		t.Fatalf("sessions were not cleaned up")
	}
	for range 2 {
		<-done
	}

	if err := sessions.Serve(ctx, newChanTransport()); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("expected ErrShuttingDown, got %v", err)
	}
}
