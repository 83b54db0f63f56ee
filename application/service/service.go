package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carekeeper/application/domain"
	"carekeeper/application/state"
)

//go:generate go tool mockgen -destination=./mocks/fact_provider_mock.go -package=mocks . FactProvider

var (
	ErrInvalidPayload  = fmt.Errorf("service: invalid payload: %w", domain.ErrValidation)
	ErrFactUnavailable = fmt.Errorf("service: fish fact unavailable: %w", domain.ErrIntegration)
)

// AquariumService はセッションから呼ばれるユースケースを束ね、検証とメトリクス記録を行う。
type AquariumService struct {
	state    state.AquariumState
	metrics  state.MetricsRecorder
	clock    Clock
	validate Validator
	facts    FactProvider
}

func NewAquariumService(s state.AquariumState, m state.MetricsRecorder, clock Clock, validator Validator, facts FactProvider) (*AquariumService, error) {
	if s == nil || m == nil || clock == nil || validator == nil || facts == nil {
		return nil, fmt.Errorf("service: missing dependencies: state=%v metrics=%v clock=%v validator=%v facts=%v", s, m, clock, validator, facts)
	}
	return &AquariumService{
		state:    s,
		metrics:  m,
		clock:    clock,
		validate: validator,
		facts:    facts,
	}, nil
}

// Login はユーザー名を検証してユーザーを水槽に追加し、参加イベントの Seq を返す。
func (s *AquariumService) Login(ctx context.Context, raw string) (name string, joinSeq uint64, err error) {
	start := s.clock.Now()
	defer func() { s.record("login", start, err) }()

	name, err = s.validate.Username(raw)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	user, err := domain.NewUser(name)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	joinSeq, err = s.state.AddUser(ctx, user)
	if err != nil {
		return "", 0, err
	}
	return name, joinSeq, nil
}

// Logout はユーザーを水槽から取り除く。存在しない場合は false。
func (s *AquariumService) Logout(ctx context.Context, username string) bool {
	start := s.clock.Now()
	defer s.record("logout", start, nil)
	return s.state.RemoveUser(ctx, username)
}

// AddFish は名前が空ならランダムな名前で魚を追加する。
func (s *AquariumService) AddFish(ctx context.Context, username, name string) (fish domain.Fish, err error) {
	start := s.clock.Now()
	defer func() { s.record("add_fish", start, err) }()

	if name != "" {
		if err := s.validate.FishName(name); err != nil {
			return domain.Fish{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	}
	return s.state.AddFishToUser(ctx, username, domain.FishSpec{Name: name})
}

func (s *AquariumService) ViewFish(ctx context.Context, username string) (fish []domain.Fish, err error) {
	start := s.clock.Now()
	defer func() { s.record("view_fish", start, err) }()

	snap, err := s.state.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	return snap.Fish, nil
}

func (s *AquariumService) FeedAll(ctx context.Context, username string) (fed int, err error) {
	start := s.clock.Now()
	defer func() { s.record("feed_fish", start, err) }()
	return s.state.FeedUser(ctx, username)
}

func (s *AquariumService) FishNames(ctx context.Context, username string) (names []string, err error) {
	start := s.clock.Now()
	defer func() { s.record("fish_names", start, err) }()
	return s.state.FishNames(ctx, username)
}

func (s *AquariumService) RemoveFish(ctx context.Context, username, fishName string) (fish domain.Fish, err error) {
	start := s.clock.Now()
	defer func() { s.record("remove_fish", start, err) }()

	if err := s.validate.FishName(fishName); err != nil {
		return domain.Fish{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return s.state.RemoveFishFromUser(ctx, username, fishName)
}

// CleanTank は水槽を完全に掃除し、掃除後の清潔度を返す。
func (s *AquariumService) CleanTank(ctx context.Context) float64 {
	start := s.clock.Now()
	defer s.record("clean_tank", start, nil)
	return s.state.FullClean(ctx)
}

func (s *AquariumService) ViewTank(ctx context.Context, username string) (summary string, err error) {
	start := s.clock.Now()
	defer func() { s.record("view_tank", start, err) }()
	return s.state.Summary(ctx, username)
}

// FishFact は外部の豆知識プロバイダに問い合わせる。失敗は ErrFactUnavailable にまとめる。
func (s *AquariumService) FishFact(ctx context.Context) (fact string, err error) {
	start := s.clock.Now()
	defer func() { s.record("fish_fact", start, err) }()

	fact, err = s.facts.Fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFactUnavailable, err)
	}
	return fact, nil
}

func (s *AquariumService) record(endpoint string, started time.Time, err error) {
	duration := s.clock.Since(started)
	ctx := context.Background()
	s.metrics.RecordLatency(ctx, endpoint, duration)
	s.metrics.IncrementCounter(ctx, "requests."+endpoint, 1)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.metrics.IncrementCounter(ctx, "failures."+endpoint, 1)
	}
}

type Clock interface {
	Now() time.Time
	Since(time.Time) time.Duration
}

type Validator interface {
	Username(raw string) (string, error)
	FishName(raw string) error
}

// FactProvider は魚に関する豆知識を1件返す外部連携。
type FactProvider interface {
	Fetch(ctx context.Context) (string, error)
}

// SystemClock は time パッケージをそのまま使う Clock。
type SystemClock struct{}

func (SystemClock) Now() time.Time                  { return time.Now() }
func (SystemClock) Since(t time.Time) time.Duration { return time.Since(t) }
