package state

import (
	"context"
	"time"

	"carekeeper/application/domain"
)

// AquariumState は水槽全体の集約。すべての操作は一つの排他ロックの下で原子的に実行される。
type AquariumState interface {
	AddUser(ctx context.Context, user *domain.User) (uint64, error)
	RemoveUser(ctx context.Context, username string) bool
	GetUser(ctx context.Context, username string) (domain.UserSnapshot, error)
	HasUser(ctx context.Context, username string) bool
	UserCount(ctx context.Context) int

	RunSimulationStep(ctx context.Context) StepReport
	CleanTank(ctx context.Context, amount float64) (float64, error)
	FullClean(ctx context.Context) float64
	Cleanliness(ctx context.Context) float64

	AddFishToUser(ctx context.Context, username string, spec domain.FishSpec) (domain.Fish, error)
	RemoveFishFromUser(ctx context.Context, username, fishName string) (domain.Fish, error)
	FeedUser(ctx context.Context, username string) (int, error)
	FeedFish(ctx context.Context, username string, fishID domain.FishID, amount int) error
	RenameFish(ctx context.Context, username string, fishID domain.FishID, newName string) error
	FishNames(ctx context.Context, username string) ([]string, error)

	Summary(ctx context.Context, username string) (string, error)
	TankSummary(ctx context.Context) string
}

// Publisher は状態変更イベントを受け取る。ロック解放後に呼ばれる。
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Event は状態変更の直後にロック下で描画されたユーザーごとのサマリー。
// Seq は単調増加し、古いイベントは新しいイベントに包含される。
type Event struct {
	Seq       uint64
	Reason    string
	Summaries map[string]string
}

// StepReport はシミュレーション1ステップの結果。
type StepReport struct {
	Cleanliness   float64
	Users         int
	LivingFish    int
	Deaths        int
	Growths       int
	PointsAwarded int
}

type MetricsRecorder interface {
	RecordLatency(ctx context.Context, endpoint string, duration time.Duration)
	RecordContention(ctx context.Context, endpoint string, wait time.Duration)
	IncrementCounter(ctx context.Context, name string, delta int)
	SetGauge(ctx context.Context, name string, value float64)
}
