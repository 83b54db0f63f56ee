package domain

import (
	"context"
	"log/slog"
	"sync"

	"carekeeper/application/state"
)

const DefaultSubscriberBuffer = 16

type Topic string

// SessionTopic はユーザー宛のプッシュを配送するトピックです。
func SessionTopic(username string) Topic {
	return Topic("session:" + username)
}

type Message struct {
	Seq  uint64
	Data []byte
}

type PubSub interface {
	Subscribe(topic Topic) <-chan Message
	Unsubscribe(topic Topic, ch <-chan Message)
	Publish(ctx context.Context, topic Topic, msg Message)
}

// SimplePubSub はトピックごとに有界チャネルで配送するインメモリ実装です。
// 購読者のバッファが満杯なら最も古いメッセージを捨てるので、Publish はブロックしません。
type SimplePubSub struct {
	mu      sync.Mutex
	subs    map[Topic]map[chan Message]struct{}
	buffer  int
	metrics state.MetricsRecorder
}

func NewSimplePubSub(buffer int, metrics state.MetricsRecorder) *SimplePubSub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &SimplePubSub{
		subs:    make(map[Topic]map[chan Message]struct{}),
		buffer:  buffer,
		metrics: metrics,
	}
}

func (p *SimplePubSub) Subscribe(topic Topic) <-chan Message {
	ch := make(chan Message, p.buffer)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subs[topic] == nil {
		p.subs[topic] = make(map[chan Message]struct{})
	}
	p.subs[topic][ch] = struct{}{}
	return ch
}

// Unsubscribe は購読を解除してチャネルを閉じます。
func (p *SimplePubSub) Unsubscribe(topic Topic, ch <-chan Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for c := range p.subs[topic] {
		if (<-chan Message)(c) == ch {
			delete(p.subs[topic], c)
			close(c)
			break
		}
	}
	if len(p.subs[topic]) == 0 {
		delete(p.subs, topic)
	}
}

func (p *SimplePubSub) Publish(ctx context.Context, topic Topic, msg Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for c := range p.subs[topic] {
		if p.offer(c, msg) {
			p.count(ctx, "pushes.delivered")
			continue
		}
		slog.WarnContext(ctx, "pubsub: subscriber buffer full, oldest message dropped", "topic", topic)
		p.count(ctx, "pushes.dropped")
	}
}

// offer は満杯なら古いものを1件捨ててから送ります。捨てずに送れたら true。
func (p *SimplePubSub) offer(c chan Message, msg Message) bool {
	select {
	case c <- msg:
		return true
	default:
	}
	select {
	case <-c:
	default:
	}
	select {
	case c <- msg:
	default:
	}
	return false
}

func (p *SimplePubSub) count(ctx context.Context, name string) {
	if p.metrics != nil {
		p.metrics.IncrementCounter(ctx, name, 1)
	}
}

// Subscribers はトピックの購読者数を返します。
func (p *SimplePubSub) Subscribers(topic Topic) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs[topic])
}
