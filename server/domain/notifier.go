package domain

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"carekeeper/application/state"
)

const DefaultNotifierQueue = 64

// Notifier は水槽の変更イベントを受け取り、ユーザーごとのトピックへ配送する単一ゴルーチンのループです。
// イベントは変更直後の全ユーザー分のサマリーを持つので、新しいイベントは古いイベントを包含します。
// そのため Seq が既に配送したものより古いイベントは捨てます。
type Notifier struct {
	pubsub  PubSub
	metrics state.MetricsRecorder

	mu      sync.Mutex
	queue   []state.Event
	limit   int
	wake    chan struct{}
	lastSeq uint64
}

func NewNotifier(pubsub PubSub, metrics state.MetricsRecorder, queueSize int) (*Notifier, error) {
	if pubsub == nil {
		return nil, errors.New("notifier: pubsub is required")
	}
	if queueSize <= 0 {
		queueSize = DefaultNotifierQueue
	}
	return &Notifier{
		pubsub:  pubsub,
		metrics: metrics,
		limit:   queueSize,
		wake:    make(chan struct{}, 1),
	}, nil
}

// Publish はロック解放後の水槽から呼ばれ、ブロックせずにキューへ積みます。
// キューが満杯なら最も古いイベントを捨てます。
func (n *Notifier) Publish(ctx context.Context, ev state.Event) {
	n.mu.Lock()
	if len(n.queue) >= n.limit {
		n.queue = n.queue[1:]
		slog.WarnContext(ctx, "notifier: queue full, oldest event dropped", "seq", ev.Seq)
		n.count(ctx, "events.dropped")
	}
	n.queue = append(n.queue, ev)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Run は ctx がキャンセルされるまでイベントを配送します。
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "notifier: context cancelled, shutting down")
			return nil
		case <-n.wake:
			for _, ev := range n.drain() {
				n.deliver(ctx, ev)
			}
		}
	}
}

func (n *Notifier) drain() []state.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.queue
	n.queue = nil
	return out
}

func (n *Notifier) deliver(ctx context.Context, ev state.Event) {
	if ev.Seq <= n.lastSeq {
		n.count(ctx, "events.stale")
		return
	}
	n.lastSeq = ev.Seq
	for username, summary := range ev.Summaries {
		n.pubsub.Publish(ctx, SessionTopic(username), Message{
			Seq:  ev.Seq,
			Data: EncodeStatusUpdate(summary),
		})
	}
	slog.DebugContext(ctx, "notifier: event delivered", "seq", ev.Seq, "reason", ev.Reason, "recipients", len(ev.Summaries))
	n.count(ctx, "events.delivered")
}

func (n *Notifier) count(ctx context.Context, name string) {
	if n.metrics != nil {
		n.metrics.IncrementCounter(ctx, name, 1)
	}
}

var _ state.Publisher = (*Notifier)(nil)
