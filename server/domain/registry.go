package domain

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	appdomain "carekeeper/application/domain"
	"carekeeper/application/state"
)

var ErrAlreadyRegistered = errors.New("registry: session already registered")

// Registry はログイン中のセッションをユーザー名で管理します。
// 登録と同時にユーザーを水槽へ追加し、解除と同時に水槽から取り除きます。
type Registry struct {
	mu       sync.Mutex
	sessions map[string]entry

	pubsub  PubSub
	service AquariumService
	metrics state.MetricsRecorder
}

type entry struct {
	sessionID SessionID
	pushCh    <-chan Message
}

// Registration は Register の結果です。
// Pushes には以前の同名ユーザー宛てのイベントが残っていることがあるので、
// 受け手は Seq が JoinSeq より小さいメッセージを捨てます。
type Registration struct {
	Username string
	Pushes   <-chan Message
	JoinSeq  uint64
}

func NewRegistry(pubsub PubSub, service AquariumService, metrics state.MetricsRecorder) (*Registry, error) {
	if pubsub == nil || service == nil {
		return nil, errors.New("registry: pubsub and service are required")
	}
	return &Registry{
		sessions: make(map[string]entry),
		pubsub:   pubsub,
		service:  service,
		metrics:  metrics,
	}, nil
}

// Register は raw を検証してユーザーを追加し、プッシュ受信用のチャネルを返します。
// 同名のユーザーが既にいれば appdomain.ErrDuplicateUser を返します。
func (r *Registry) Register(ctx context.Context, sessionID SessionID, raw string) (Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reg := range r.sessions {
		if reg.sessionID == sessionID {
			return Registration{}, ErrAlreadyRegistered
		}
	}
	name, err := appdomain.ValidateUsername(raw)
	if err != nil {
		return Registration{}, err
	}
	if _, ok := r.sessions[name]; ok {
		return Registration{}, appdomain.ErrDuplicateUser
	}

	// 参加イベントを取りこぼさないよう、水槽へ追加する前に購読する
	topic := SessionTopic(name)
	pushCh := r.pubsub.Subscribe(topic)
	_, joinSeq, err := r.service.Login(ctx, name)
	if err != nil {
		r.pubsub.Unsubscribe(topic, pushCh)
		return Registration{}, err
	}
	r.sessions[name] = entry{sessionID: sessionID, pushCh: pushCh}
	r.gauge(ctx)
	slog.InfoContext(ctx, "session registered", "session_id", sessionID, "username", name, "join_seq", joinSeq)
	return Registration{Username: name, Pushes: pushCh, JoinSeq: joinSeq}, nil
}

// Unregister は購読を解除しユーザーを水槽から取り除きます。未登録なら何もしません。
func (r *Registry) Unregister(ctx context.Context, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.sessions[username]
	if !ok {
		return
	}
	delete(r.sessions, username)
	r.pubsub.Unsubscribe(SessionTopic(username), reg.pushCh)
	r.service.Logout(ctx, username)
	r.gauge(ctx)
	slog.InfoContext(ctx, "session unregistered", "session_id", reg.sessionID, "username", username)
}

func (r *Registry) IsRegistered(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[username]
	return ok
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) gauge(ctx context.Context) {
	if r.metrics != nil {
		r.metrics.SetGauge(ctx, "sessions.live", float64(len(r.sessions)))
	}
}
