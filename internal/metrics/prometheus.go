// Package metrics は state.MetricsRecorder を Prometheus のコレクタで実装します。
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"carekeeper/application/state"
)

const namespace = "carekeeper"

// Recorder は操作の所要時間、ロック待ち時間、カウンタ、ゲージを記録します。
// カウンタとゲージは名前をラベルにした1つの Vec にまとめます。
type Recorder struct {
	registry   *prometheus.Registry
	latency    *prometheus.HistogramVec
	contention *prometheus.HistogramVec
	counters   *prometheus.CounterVec
	gauges     *prometheus.GaugeVec
}

// NewRecorder は専用のレジストリを持つ Recorder を生成します。
// Go ランタイムとプロセスのコレクタも同じレジストリに登録します。
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of aquarium operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"endpoint"}),
		contention: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the aquarium lock.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"endpoint"}),
		counters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Counted events by name.",
		}, []string{"name"}),
		gauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gauge",
			Help:      "Current values by name.",
		}, []string{"name"}),
	}
	r.registry.MustRegister(
		r.latency,
		r.contention,
		r.counters,
		r.gauges,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) RecordLatency(_ context.Context, endpoint string, duration time.Duration) {
	r.latency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (r *Recorder) RecordContention(_ context.Context, endpoint string, wait time.Duration) {
	r.contention.WithLabelValues(endpoint).Observe(wait.Seconds())
}

// IncrementCounter は delta が負の場合は何もしません。
func (r *Recorder) IncrementCounter(_ context.Context, name string, delta int) {
	if delta < 0 {
		return
	}
	r.counters.WithLabelValues(name).Add(float64(delta))
}

func (r *Recorder) SetGauge(_ context.Context, name string, value float64) {
	r.gauges.WithLabelValues(name).Set(value)
}

// Registry は登録先のレジストリを返します。
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler は /metrics 用のハンドラを返します。
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

var _ state.MetricsRecorder = (*Recorder)(nil)
