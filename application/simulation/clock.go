package simulation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"carekeeper/application/state"
)

const DefaultInterval = 60 * time.Second

// Stepper は Clock が駆動する水槽。
type Stepper interface {
	RunSimulationStep(ctx context.Context) state.StepReport
	TankSummary(ctx context.Context) string
}

// Clock は一定間隔でシミュレーションを1ステップ進める。
// 前のステップが終わっていなければ、そのティックはキューせずに捨てる。
type Clock struct {
	interval time.Duration
	stepper  Stepper
	metrics  state.MetricsRecorder

	running atomic.Bool
	wg      sync.WaitGroup
}

func NewClock(interval time.Duration, stepper Stepper, metrics state.MetricsRecorder) (*Clock, error) {
	if stepper == nil {
		return nil, errors.New("simulation: stepper is required")
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Clock{
		interval: interval,
		stepper:  stepper,
		metrics:  metrics,
	}, nil
}

// Run は ctx がキャンセルされるまでティックを発行し、実行中のステップを待ってから戻る。
func (c *Clock) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer c.wg.Wait()

	slog.InfoContext(ctx, "simulation clock started", "interval", c.interval)
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "simulation clock stopped")
			return nil
		case <-ticker.C:
			if !c.running.CompareAndSwap(false, true) {
				c.skip(ctx)
				continue
			}
			c.wg.Go(func() {
				defer c.running.Store(false)
				c.step(ctx)
			})
		}
	}
}

// Step は1ステップを同期的に実行する。別のステップが実行中なら false を返して何もしない。
func (c *Clock) Step(ctx context.Context) bool {
	if !c.running.CompareAndSwap(false, true) {
		c.skip(ctx)
		return false
	}
	defer c.running.Store(false)
	c.step(ctx)
	return true
}

func (c *Clock) step(ctx context.Context) {
	start := time.Now()
	report := c.stepper.RunSimulationStep(ctx)
	elapsed := time.Since(start)

	slog.InfoContext(ctx, "simulation step executed",
		"cleanliness", report.Cleanliness,
		"users", report.Users,
		"living_fish", report.LivingFish,
		"deaths", report.Deaths,
		"growths", report.Growths,
		"points_awarded", report.PointsAwarded,
		"elapsed", elapsed,
	)
	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		slog.DebugContext(ctx, "tank summary", "summary", c.stepper.TankSummary(ctx))
	}
	if c.metrics != nil {
		c.metrics.RecordLatency(ctx, "tick", elapsed)
		c.metrics.IncrementCounter(ctx, "ticks.executed", 1)
		c.metrics.SetGauge(ctx, "tank.cleanliness", report.Cleanliness)
		c.metrics.SetGauge(ctx, "fish.living", float64(report.LivingFish))
	}
}

func (c *Clock) skip(ctx context.Context) {
	slog.WarnContext(ctx, "simulation step still running, tick skipped")
	if c.metrics != nil {
		c.metrics.IncrementCounter(ctx, "ticks.skipped", 1)
	}
}
