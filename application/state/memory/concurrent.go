package memory

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"carekeeper/application/domain"
	"carekeeper/application/state"
)

// Config は Aquarium の依存とパラメータ。
type Config struct {
	Publisher state.Publisher
	Metrics   state.MetricsRecorder
	Rand      *rand.Rand

	// BaselineSoil が 0 以下なら DefaultBaselineSoil を使う。
	BaselineSoil float64

	// NoBaseline は魚以外の汚れを無効にする。
	NoBaseline bool
}

func (c Config) baselineSoil() float64 {
	switch {
	case c.NoBaseline:
		return 0
	case c.BaselineSoil <= 0:
		return DefaultBaselineSoil
	default:
		return c.BaselineSoil
	}
}

// Aquarium は Store をラップし、単一の排他ロックの下で AquariumState を実装する。
// 状態を変更した操作はロック内でサマリーを描画し、ロック解放後に Publisher へ渡す。
type Aquarium struct {
	base      *Store
	mu        sync.Mutex
	seq       uint64
	publisher state.Publisher
	metrics   state.MetricsRecorder
	clk       func() time.Time
}

// NewAquarium は新しい Aquarium を生成する。
func NewAquarium(cfg Config) *Aquarium {
	return &Aquarium{
		base:      NewStore(cfg.baselineSoil(), cfg.Rand),
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		clk:       time.Now,
	}
}

// WithClock はテスト用に時間ソースを差し替える。
func (a *Aquarium) WithClock(clock func() time.Time) *Aquarium {
	if clock != nil {
		a.clk = clock
	}
	return a
}

// SetPublisher は起動時の配線順の都合で Publisher を後から設定する。
func (a *Aquarium) SetPublisher(p state.Publisher) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.publisher = p
}

// AddUser は参加イベントの Seq を返す。これより古いイベントは以前の同名ユーザーのもの。
func (a *Aquarium) AddUser(ctx context.Context, user *domain.User) (uint64, error) {
	var seq uint64
	err := a.mutate(ctx, "user.joined", func() error {
		if err := a.base.addUser(user); err != nil {
			return err
		}
		seq = a.seq + 1
		return nil
	})
	return seq, err
}

func (a *Aquarium) RemoveUser(ctx context.Context, username string) bool {
	var removed bool
	_ = a.mutate(ctx, "user.left", func() error {
		removed = a.base.removeUser(username)
		if !removed {
			return domain.ErrUserNotFound
		}
		return nil
	})
	return removed
}

func (a *Aquarium) GetUser(ctx context.Context, username string) (domain.UserSnapshot, error) {
	a.lock(ctx, "get_user")
	defer a.mu.Unlock()
	user, err := a.base.getUser(username)
	if err != nil {
		return domain.UserSnapshot{}, err
	}
	return user.Snapshot(), nil
}

func (a *Aquarium) HasUser(ctx context.Context, username string) bool {
	a.lock(ctx, "has_user")
	defer a.mu.Unlock()
	_, err := a.base.getUser(username)
	return err == nil
}

func (a *Aquarium) UserCount(ctx context.Context) int {
	a.lock(ctx, "user_count")
	defer a.mu.Unlock()
	return len(a.base.users)
}

func (a *Aquarium) RunSimulationStep(ctx context.Context) state.StepReport {
	var report state.StepReport
	_ = a.mutate(ctx, "tick", func() error {
		report = a.base.runSimulationStep()
		return nil
	})
	return report
}

func (a *Aquarium) CleanTank(ctx context.Context, amount float64) (float64, error) {
	var level float64
	err := a.mutate(ctx, "tank.cleaned", func() error {
		var err error
		level, err = a.base.cleanTank(amount)
		return err
	})
	return level, err
}

func (a *Aquarium) FullClean(ctx context.Context) float64 {
	var level float64
	_ = a.mutate(ctx, "tank.cleaned", func() error {
		level = a.base.fullClean()
		return nil
	})
	return level
}

func (a *Aquarium) Cleanliness(ctx context.Context) float64 {
	a.lock(ctx, "cleanliness")
	defer a.mu.Unlock()
	return a.base.cleanliness
}

func (a *Aquarium) AddFishToUser(ctx context.Context, username string, spec domain.FishSpec) (domain.Fish, error) {
	var fish domain.Fish
	err := a.mutate(ctx, "fish.added", func() error {
		var err error
		fish, err = a.base.addFishToUser(username, spec)
		return err
	})
	return fish, err
}

func (a *Aquarium) RemoveFishFromUser(ctx context.Context, username, fishName string) (domain.Fish, error) {
	var fish domain.Fish
	err := a.mutate(ctx, "fish.removed", func() error {
		var err error
		fish, err = a.base.removeFishFromUser(username, fishName)
		return err
	})
	return fish, err
}

func (a *Aquarium) FeedUser(ctx context.Context, username string) (int, error) {
	var fed int
	err := a.mutate(ctx, "fish.fed", func() error {
		var err error
		fed, err = a.base.feedUser(username)
		return err
	})
	return fed, err
}

func (a *Aquarium) FeedFish(ctx context.Context, username string, fishID domain.FishID, amount int) error {
	return a.mutate(ctx, "fish.fed", func() error {
		return a.base.feedFish(username, fishID, amount)
	})
}

func (a *Aquarium) RenameFish(ctx context.Context, username string, fishID domain.FishID, newName string) error {
	return a.mutate(ctx, "fish.renamed", func() error {
		return a.base.renameFish(username, fishID, newName)
	})
}

func (a *Aquarium) FishNames(ctx context.Context, username string) ([]string, error) {
	a.lock(ctx, "fish_names")
	defer a.mu.Unlock()
	return a.base.fishNames(username)
}

func (a *Aquarium) Summary(ctx context.Context, username string) (string, error) {
	a.lock(ctx, "summary")
	defer a.mu.Unlock()
	return a.base.summary(username)
}

func (a *Aquarium) TankSummary(ctx context.Context) string {
	a.lock(ctx, "tank_summary")
	defer a.mu.Unlock()
	return a.base.tankSummary()
}

// Reset は全ユーザーを消し清潔度を初期値に戻す。イベントは発行しない。
func (a *Aquarium) Reset(ctx context.Context) {
	a.lock(ctx, "reset")
	defer a.mu.Unlock()
	a.base.reset()
}

// mutate は fn をロック下で実行し、成功時のみサマリーを描画してロック解放後に発行する。
func (a *Aquarium) mutate(ctx context.Context, reason string, fn func() error) error {
	a.lock(ctx, reason)
	if err := fn(); err != nil {
		a.mu.Unlock()
		return err
	}
	a.seq++
	ev := state.Event{
		Seq:       a.seq,
		Reason:    reason,
		Summaries: a.base.summaries(),
	}
	publisher := a.publisher
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.IncrementCounter(ctx, "state."+reason, 1)
	}
	if publisher != nil {
		publisher.Publish(ctx, ev)
	}
	return nil
}

func (a *Aquarium) lock(ctx context.Context, endpoint string) {
	start := a.now()
	a.mu.Lock()
	if a.metrics != nil {
		a.metrics.RecordContention(ctx, endpoint, a.now().Sub(start))
	}
}

func (a *Aquarium) now() time.Time {
	if a.clk == nil {
		return time.Now()
	}
	return a.clk()
}

var _ state.AquariumState = (*Aquarium)(nil)
