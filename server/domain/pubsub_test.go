package domain

import (
	"context"
	"testing"
	"time"
)

type counterMetrics struct {
	counters map[string]int
}

func newCounterMetrics() *counterMetrics {
	return &counterMetrics{counters: make(map[string]int)}
}

func (m *counterMetrics) RecordLatency(context.Context, string, time.Duration)    {}
func (m *counterMetrics) RecordContention(context.Context, string, time.Duration) {}
func (m *counterMetrics) IncrementCounter(_ context.Context, name string, delta int) {
	m.counters[name] += delta
}
func (m *counterMetrics) SetGauge(context.Context, string, float64) {}

func TestSimplePubSub_DeliversToTopicOnly(t *testing.T) {
	ps := NewSimplePubSub(4, nil)
	ann := ps.Subscribe(SessionTopic("Ann"))
	bob := ps.Subscribe(SessionTopic("Bob"))

	ps.Publish(context.Background(), SessionTopic("Ann"), Message{Seq: 1, Data: []byte("hi")})

	select {
	case msg := <-ann:
		if msg.Seq != 1 || string(msg.Data) != "hi" {
			t.Fatalf("unexpected message %+v", msg)
		}
	default:
		t.Fatalf("Ann did not receive the message")
	}
	select {
	case msg := <-bob:
		t.Fatalf("Bob received %+v", msg)
	default:
	}
}

func TestSimplePubSub_DropsOldestWhenFull(t *testing.T) {
	metrics := newCounterMetrics()
	ps := NewSimplePubSub(2, metrics)
	ch := ps.Subscribe("t")

	for seq := uint64(1); seq <= 4; seq++ {
		ps.Publish(context.Background(), "t", Message{Seq: seq})
	}

	if got := (<-ch).Seq; got != 3 {
		t.Fatalf("first = %d, want 3", got)
	}
	if got := (<-ch).Seq; got != 4 {
		t.Fatalf("second = %d, want 4", got)
	}
	if metrics.counters["pushes.delivered"] != 2 || metrics.counters["pushes.dropped"] != 2 {
		t.Fatalf("unexpected counters %v", metrics.counters)
	}
}

func TestSimplePubSub_Unsubscribe(t *testing.T) {
	ps := NewSimplePubSub(0, nil)
	topic := SessionTopic("Ann")
	first := ps.Subscribe(topic)
	second := ps.Subscribe(topic)
	if ps.Subscribers(topic) != 2 {
		t.Fatalf("subscribers = %d, want 2", ps.Subscribers(topic))
	}

	ps.Unsubscribe(topic, first)
	if _, ok := <-first; ok {
		t.Fatalf("unsubscribed channel should be closed")
	}
	ps.Publish(context.Background(), topic, Message{Seq: 1})
	if (<-second).Seq != 1 {
		t.Fatalf("remaining subscriber missed the message")
	}

	ps.Unsubscribe(topic, second)
	if ps.Subscribers(topic) != 0 {
		t.Fatalf("topic should be removed")
	}
	// 購読者がいなくてもブロックしない
	ps.Publish(context.Background(), topic, Message{Seq: 2})
}
