package domain

const (
	MaxFish        = 9
	StartingPoints = 100
)

// User はログイン中のユーザーと所有する魚。魚は他のユーザーと共有されない。
type User struct {
	name   string
	points int
	fish   []*Fish
}

// UserSnapshot はロック外へ持ち出すためのユーザーのコピー。
type UserSnapshot struct {
	Name   string
	Points int
	Fish   []Fish
}

func NewUser(name string) (*User, error) {
	trimmed, err := ValidateUsername(name)
	if err != nil {
		return nil, err
	}
	return &User{name: trimmed, points: StartingPoints}, nil
}

func (u *User) Name() string   { return u.name }
func (u *User) Points() int    { return u.points }
func (u *User) FishCount() int { return len(u.fish) }
func (u *User) IsFull() bool   { return len(u.fish) >= MaxFish }

// Fish は所有する魚のコピーを所有順に返す。
func (u *User) Fish() []Fish {
	out := make([]Fish, 0, len(u.fish))
	for _, f := range u.fish {
		out = append(out, *f)
	}
	return out
}

func (u *User) Snapshot() UserSnapshot {
	return UserSnapshot{Name: u.name, Points: u.points, Fish: u.Fish()}
}

func (u *User) HasDeadFish() bool {
	for _, f := range u.fish {
		if f.IsDead() {
			return true
		}
	}
	return false
}

func (u *User) hasFishNamed(name string) bool {
	for _, f := range u.fish {
		if f.name == name {
			return true
		}
	}
	return false
}

// UniqueFishName は所有する魚と重複しないよう必要なら数字の接尾辞を付けた名前を返す。
func (u *User) UniqueFishName(base string) string {
	return disambiguate(base, u.hasFishNamed)
}

// AddFish は魚を追加する。上限に達している場合は何も変更しない。
func (u *User) AddFish(f *Fish) error {
	if f == nil {
		return invalidf("fish must not be nil")
	}
	if u.IsFull() {
		return ErrTooManyFish
	}
	u.fish = append(u.fish, f)
	return nil
}

// FindFish は ID で魚を探す。返すポインタはロック下でのみ使うこと。
func (u *User) FindFish(id FishID) (*Fish, error) {
	for _, f := range u.fish {
		if f.id == id {
			return f, nil
		}
	}
	return nil, ErrFishNotFound
}

// RemoveFishByName は名前が一致する最初の魚を取り除いて返す。
func (u *User) RemoveFishByName(name string) (Fish, error) {
	for i, f := range u.fish {
		if f.name == name {
			u.fish = append(u.fish[:i], u.fish[i+1:]...)
			return *f, nil
		}
	}
	return Fish{}, ErrFishNotFound
}

// FishNames は所有する魚の名前を所有順に返す。
func (u *User) FishNames() []string {
	out := make([]string, 0, len(u.fish))
	for _, f := range u.fish {
		out = append(out, f.name)
	}
	return out
}

// FeedAll は生きている魚すべてを満腹にし、餌を与えた数を返す。
func (u *User) FeedAll() int {
	fed := 0
	for _, f := range u.fish {
		if f.FeedFull() == nil {
			fed++
		}
	}
	return fed
}

// AwardPoints は 1 + 生きている魚の PointsWorth の合計を加算し、加算量を返す。
func (u *User) AwardPoints() int {
	award := 1
	for _, f := range u.fish {
		award += f.PointsWorth()
	}
	u.points += award
	return award
}

func (u *User) SpendPoints(n int) error {
	if n < 0 {
		return invalidf("points to spend must not be negative, got %d", n)
	}
	if u.points < n {
		return ErrInsufficientPoints
	}
	u.points -= n
	return nil
}

// livingFish は生きている魚へのポインタを返す。
func (u *User) livingFish() []*Fish {
	out := make([]*Fish, 0, len(u.fish))
	for _, f := range u.fish {
		if !f.IsDead() {
			out = append(out, f)
		}
	}
	return out
}

// ApplyHunger は生きている魚すべてに空腹を適用し、この段階で死んだ数を返す。
func (u *User) ApplyHunger() int {
	died := 0
	for _, f := range u.livingFish() {
		f.ApplyHunger()
		if f.IsDead() {
			died++
		}
	}
	return died
}

// GrowFish は生きている魚すべての成長判定を行い、サイズが増えた数を返す。
func (u *User) GrowFish() int {
	grown := 0
	for _, f := range u.livingFish() {
		if f.Grow() {
			grown++
		}
	}
	return grown
}

// Soil は生きている魚が1ステップで水槽を汚す量の合計。
func (u *User) Soil() float64 {
	total := 0.0
	for _, f := range u.livingFish() {
		total += f.Soil()
	}
	return total
}

func (u *User) LivingFishCount() int { return len(u.livingFish()) }
