package domain

import (
	"context"

	appdomain "carekeeper/application/domain"
)

// AquariumService はセッションから呼び出すユースケースの集合です。
// application/service.AquariumService が実装します。
type AquariumService interface {
	// Login は参加イベントの Seq を返す。プッシュのうちこれより古いものは以前の同名ユーザー宛て。
	Login(ctx context.Context, raw string) (string, uint64, error)
	Logout(ctx context.Context, username string) bool

	AddFish(ctx context.Context, username, name string) (appdomain.Fish, error)
	ViewFish(ctx context.Context, username string) ([]appdomain.Fish, error)
	FeedAll(ctx context.Context, username string) (int, error)
	FishNames(ctx context.Context, username string) ([]string, error)
	RemoveFish(ctx context.Context, username, fishName string) (appdomain.Fish, error)
	CleanTank(ctx context.Context) float64
	ViewTank(ctx context.Context, username string) (string, error)
	FishFact(ctx context.Context) (string, error)
}
