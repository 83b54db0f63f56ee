package domain_test

import (
	"context"
	"io"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"carekeeper/application/service"
	"carekeeper/application/state/memory"
	domain "carekeeper/server/domain"
)

const waitTimeout = 2 * time.Second

// pipeTransport はテスト用のインメモリ Transport。1回の Write が1フレーム。
type pipeTransport struct {
	in     chan string
	out    chan string
	closed chan struct{}
	once   sync.Once
}

func newPipeTransport() *pipeTransport {
	return &pipeTransport{
		in:     make(chan string, 16),
		out:    make(chan string, 256),
		closed: make(chan struct{}),
	}
}

func (p *pipeTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case line, ok := <-p.in:
		if !ok {
			return nil, io.EOF
		}
		return []byte(line), nil
	case <-p.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeTransport) Write(ctx context.Context, data []byte) error {
	select {
	case <-p.closed:
		return io.ErrClosedPipe
	default:
	}
	select {
	case p.out <- string(data):
		return nil
	case <-p.closed:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeTransport) Close(int32, string) error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

// stallingTransport は stalled の間、相手が読まない接続のように Write を止める。
type stallingTransport struct {
	*pipeTransport
	stalled atomic.Bool
}

func (s *stallingTransport) Write(ctx context.Context, data []byte) error {
	if !s.stalled.Load() {
		return s.pipeTransport.Write(ctx, data)
	}
	select {
	case <-s.closed:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

type stubFacts struct {
	fact string
	err  error
}

func (s stubFacts) Fetch(context.Context) (string, error) { return s.fact, s.err }

type noopMetrics struct{}

func (noopMetrics) RecordLatency(context.Context, string, time.Duration)    {}
func (noopMetrics) RecordContention(context.Context, string, time.Duration) {}
func (noopMetrics) IncrementCounter(context.Context, string, int)           {}
func (noopMetrics) SetGauge(context.Context, string, float64)               {}

type harness struct {
	t        *testing.T
	ctx      context.Context
	aquarium *memory.Aquarium
	pubsub   *domain.SimplePubSub
	registry *domain.Registry
	service  *service.AquariumService
	notifier *domain.Notifier
}

func newHarness(t *testing.T, facts service.FactProvider) *harness {
	t.Helper()
	h := newPausedHarness(t, facts)
	h.startNotifier()
	return h
}

// newPausedHarness は Notifier を起動しない。イベントは startNotifier までキューに溜まる。
func newPausedHarness(t *testing.T, facts service.FactProvider) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	pubsub := domain.NewSimplePubSub(16, nil)
	notifier, err := domain.NewNotifier(pubsub, nil, 0)
	if err != nil {
		t.Fatalf("NewNotifier returned error: %v", err)
	}

	aquarium := memory.NewAquarium(memory.Config{
		Publisher:    notifier,
		Rand:         rand.New(rand.NewPCG(4, 2)),
		BaselineSoil: memory.DefaultBaselineSoil,
	})
	if facts == nil {
		facts = stubFacts{fact: "Seahorse fathers carry the eggs."}
	}
	svc, err := service.NewAquariumService(aquarium, noopMetrics{}, service.SystemClock{}, service.SimpleValidator{}, facts)
	if err != nil {
		t.Fatalf("NewAquariumService returned error: %v", err)
	}
	registry, err := domain.NewRegistry(pubsub, svc, nil)
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}
	return &harness{t: t, ctx: ctx, aquarium: aquarium, pubsub: pubsub, registry: registry, service: svc, notifier: notifier}
}

func (h *harness) startNotifier() {
	go func() { _ = h.notifier.Run(h.ctx) }()
}

type client struct {
	t        *testing.T
	tr       *pipeTransport
	endpoint *domain.SessionEndpoint
	done     chan error
	statuses []string
	replies  []string
}

func (h *harness) connect() *client {
	h.t.Helper()
	return h.connectWith(domain.EndpointConfig{})
}

func (h *harness) connectWith(cfg domain.EndpointConfig) *client {
	h.t.Helper()
	tr := newPipeTransport()
	session := domain.NewSession()
	conn := domain.NewConnection(session.ID(), tr)
	ep, err := domain.NewSessionEndpoint(h.ctx, session, conn, h.registry, h.service, cfg)
	if err != nil {
		h.t.Fatalf("NewSessionEndpoint returned error: %v", err)
	}
	c := &client{t: h.t, tr: tr, endpoint: ep, done: make(chan error, 1)}
	go func() { c.done <- ep.Run() }()
	c.expectReply(domain.MsgWelcome)
	return c
}

func (h *harness) login(name string) *client {
	h.t.Helper()
	c := h.connect()
	c.send(name)
	c.expectReply(domain.MarkerLoginSuccessful + "\nLogin successful! Welcome, " + name + ".")
	return c
}

func (c *client) send(line string) {
	c.t.Helper()
	select {
	case c.tr.in <- line:
	case <-time.After(waitTimeout):
		c.t.Fatalf("timed out sending %q", line)
	}
}

// next は次のフレームをそのまま返す。
func (c *client) next() string {
	c.t.Helper()
	select {
	case frame := <-c.tr.out:
		return frame
	case <-time.After(waitTimeout):
		c.t.Fatalf("timed out waiting for a frame")
		return ""
	}
}

func isStatus(frame string) bool {
	return strings.HasPrefix(frame, domain.MarkerStatusUpdateStart)
}

// nextReply はプッシュを読み飛ばして次の応答フレームを返す。
func (c *client) nextReply() string {
	c.t.Helper()
	if len(c.replies) > 0 {
		r := c.replies[0]
		c.replies = c.replies[1:]
		return r
	}
	for {
		frame := c.next()
		if isStatus(frame) {
			c.statuses = append(c.statuses, frame)
			continue
		}
		return frame
	}
}

// waitStatus は次のプッシュを返す。
func (c *client) waitStatus() string {
	c.t.Helper()
	if len(c.statuses) > 0 {
		s := c.statuses[0]
		c.statuses = c.statuses[1:]
		return s
	}
	for {
		frame := c.next()
		if isStatus(frame) {
			return frame
		}
		c.replies = append(c.replies, frame)
	}
}

func (c *client) expectReply(want string) {
	c.t.Helper()
	if got := c.nextReply(); got != want {
		c.t.Fatalf("reply = %q, want %q", got, want)
	}
}

func (c *client) expectNoFrame(d time.Duration) {
	c.t.Helper()
	select {
	case frame := <-c.tr.out:
		c.t.Fatalf("unexpected frame %q", frame)
	case <-time.After(d):
	}
}

func (c *client) waitDone() {
	c.t.Helper()
	select {
	case <-c.done:
	case <-time.After(waitTimeout):
		c.t.Fatalf("session did not terminate")
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met: %s", msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
