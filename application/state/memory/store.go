package memory

import (
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"strings"

	"carekeeper/application/domain"
	"carekeeper/application/state"
	"carekeeper/utils"
)

const (
	MaxCleanliness = 100.0
	// DefaultBaselineSoil は魚がいなくても1ステップごとに進む汚れ。
	DefaultBaselineSoil = 1.0
)

// Store はインメモリの水槽状態を保持する。
// ロックは持たず、Aquarium がラップして排他制御を行う。
type Store struct {
	users        map[string]*domain.User
	cleanliness  float64
	baselineSoil float64
	rng          *rand.Rand
}

// NewStore は清潔度 100、ユーザーなしの水槽を生成する。
func NewStore(baselineSoil float64, rng *rand.Rand) *Store {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Store{
		users:        make(map[string]*domain.User),
		cleanliness:  MaxCleanliness,
		baselineSoil: max(baselineSoil, 0),
		rng:          rng,
	}
}

func (s *Store) addUser(user *domain.User) error {
	if user == nil || user.Name() == "" {
		return &domain.ValidationError{Reason: "user is required"}
	}
	if _, ok := s.users[user.Name()]; ok {
		return domain.ErrDuplicateUser
	}
	s.users[user.Name()] = user
	return nil
}

func (s *Store) removeUser(username string) bool {
	if _, ok := s.users[username]; !ok {
		return false
	}
	delete(s.users, username)
	return true
}

func (s *Store) getUser(username string) (*domain.User, error) {
	user, ok := s.users[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// sortedUsers は描画結果を決定的にするため名前順でユーザーを返す。
func (s *Store) sortedUsers() []*domain.User {
	out := make([]*domain.User, 0, len(s.users))
	for _, name := range slices.Sorted(maps.Keys(s.users)) {
		out = append(out, s.users[name])
	}
	return out
}

// runSimulationStep は清潔度、空腹、成長、ポイントの順に1ステップ進める。
// 空腹を成長より先に適用するので、このステップで閾値を下回った魚は育たない。
// 成長をポイントより先に評価するので、サイズ増加は同じステップの加算に反映される。
func (s *Store) runSimulationStep() state.StepReport {
	var report state.StepReport
	s.recalculateCleanliness()
	for _, user := range s.users {
		report.Deaths += user.ApplyHunger()
	}
	for _, user := range s.users {
		report.Growths += user.GrowFish()
	}
	for _, user := range s.users {
		report.PointsAwarded += user.AwardPoints()
		report.LivingFish += user.LivingFishCount()
	}
	report.Users = len(s.users)
	report.Cleanliness = s.cleanliness
	return report
}

func (s *Store) recalculateCleanliness() {
	if s.cleanliness > 0 {
		soil := s.baselineSoil
		for _, user := range s.users {
			soil += user.Soil()
		}
		s.cleanliness -= soil
	}
	s.cleanliness = clampCleanliness(s.cleanliness)
}

func (s *Store) cleanTank(amount float64) (float64, error) {
	if !utils.IsFinite(amount) || amount < 0 {
		return s.cleanliness, &domain.ValidationError{Reason: fmt.Sprintf("clean amount must be a non-negative number, got %v", amount)}
	}
	s.cleanliness = clampCleanliness(s.cleanliness + amount)
	return s.cleanliness, nil
}

func (s *Store) fullClean() float64 {
	s.cleanliness = MaxCleanliness
	return s.cleanliness
}

func (s *Store) addFishToUser(username string, spec domain.FishSpec) (domain.Fish, error) {
	user, err := s.getUser(username)
	if err != nil {
		return domain.Fish{}, err
	}
	if user.IsFull() {
		return domain.Fish{}, domain.ErrTooManyFish
	}
	base := spec.Name
	if strings.TrimSpace(base) == "" {
		base = domain.RandomFishName(s.rng)
	}
	base, err = domain.ValidateFishName(base)
	if err != nil {
		return domain.Fish{}, err
	}
	fish, err := domain.NewRandomFish(user.UniqueFishName(base), s.rng)
	if err != nil {
		return domain.Fish{}, err
	}
	if err := user.AddFish(fish); err != nil {
		return domain.Fish{}, err
	}
	return *fish, nil
}

func (s *Store) removeFishFromUser(username, fishName string) (domain.Fish, error) {
	user, err := s.getUser(username)
	if err != nil {
		return domain.Fish{}, err
	}
	return user.RemoveFishByName(strings.TrimSpace(fishName))
}

func (s *Store) feedUser(username string) (int, error) {
	user, err := s.getUser(username)
	if err != nil {
		return 0, err
	}
	return user.FeedAll(), nil
}

func (s *Store) feedFish(username string, fishID domain.FishID, amount int) error {
	user, err := s.getUser(username)
	if err != nil {
		return err
	}
	fish, err := user.FindFish(fishID)
	if err != nil {
		return err
	}
	return fish.Feed(amount)
}

func (s *Store) renameFish(username string, fishID domain.FishID, newName string) error {
	user, err := s.getUser(username)
	if err != nil {
		return err
	}
	fish, err := user.FindFish(fishID)
	if err != nil {
		return err
	}
	return fish.Rename(newName)
}

func (s *Store) fishNames(username string) ([]string, error) {
	user, err := s.getUser(username)
	if err != nil {
		return nil, err
	}
	return user.FishNames(), nil
}

func (s *Store) summary(username string) (string, error) {
	user, err := s.getUser(username)
	if err != nil {
		return "", err
	}
	return s.renderSummary(user), nil
}

// summaries は全ユーザー分のサマリーを描画する。
func (s *Store) summaries() map[string]string {
	out := make(map[string]string, len(s.users))
	for name, user := range s.users {
		out[name] = s.renderSummary(user)
	}
	return out
}

func (s *Store) renderSummary(user *domain.User) string {
	var living, dead []domain.Fish
	for _, f := range user.Fish() {
		if f.IsDead() {
			dead = append(dead, f)
		} else {
			living = append(living, f)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Tank Cleanliness: %.2f%%\n", s.cleanliness)
	fmt.Fprintf(&b, "Users Online: %d\n", len(s.users))
	fmt.Fprintf(&b, "Points: %d\n", user.Points())
	fmt.Fprintf(&b, "Living Fish (%d/%d):\n", len(living), domain.MaxFish)
	writeFishLines(&b, living)
	fmt.Fprintf(&b, "Dead Fish (%d):\n", len(dead))
	writeFishLines(&b, dead)
	return strings.TrimSuffix(b.String(), "\n")
}

func writeFishLines(b *strings.Builder, fish []domain.Fish) {
	if len(fish) == 0 {
		b.WriteString("- none\n")
		return
	}
	for _, f := range fish {
		fmt.Fprintf(b, "- %s\n", f)
	}
}

// tankSummary は管理用の水槽全体のサマリー。
func (s *Store) tankSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Aquarium Cleanliness: %.2f\n", s.cleanliness)
	fmt.Fprintf(&b, "Users Online: %d\n", len(s.users))
	for _, user := range s.sortedUsers() {
		fmt.Fprintf(&b, "- %s (Points: %d, Fish Owned: %d)\n", user.Name(), user.Points(), user.FishCount())
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// reset はテストの独立性のためにユーザーを消し清潔度を戻す。
func (s *Store) reset() {
	clear(s.users)
	s.cleanliness = MaxCleanliness
}

func clampCleanliness(v float64) float64 {
	return max(0, min(v, MaxCleanliness))
}
