package domain

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

const (
	MaxHealth         = 100
	MaxSize           = 10
	MinHealthToGrow   = 50
	DefaultHungerRate = 3
	DefaultSoilRate   = 0.1
)

// FishID は魚の識別子。プロセスをまたいで連番にならないようランダムに採番する。
type FishID uuid.UUID

func NewFishID() FishID { return FishID(uuid.New()) }

func ParseFishID(s string) (FishID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return FishID{}, invalidf("malformed fish id %q", s)
	}
	return FishID(id), nil
}

func (id FishID) String() string { return uuid.UUID(id).String() }

func (id FishID) IsZero() bool { return id == FishID{} }

// FishSpec は魚を追加するときの指定。Name が空ならテンプレートから名前を選ぶ。
type FishSpec struct {
	Name string
}

// Fish はユーザーが所有する魚。並行性を持たず、所有する集約のロック下でのみ変更される。
// 値コピーはそのままスナップショットとして扱える。
type Fish struct {
	id         FishID
	name       string
	species    Species
	health     int
	age        int
	size       int
	hungerRate int
	soilRate   float64
}

// NewFish は検証済みの名前で健康な稚魚を生成する。
func NewFish(name string, species Species) (*Fish, error) {
	trimmed, err := ValidateFishName(name)
	if err != nil {
		return nil, err
	}
	if !species.Valid() {
		return nil, invalidf("unknown species %d", species)
	}
	return &Fish{
		id:         NewFishID(),
		name:       trimmed,
		species:    species,
		health:     MaxHealth,
		age:        0,
		size:       1,
		hungerRate: DefaultHungerRate,
		soilRate:   DefaultSoilRate,
	}, nil
}

// NewRandomFish は種を rng で選んで魚を生成する。
func NewRandomFish(name string, rng *rand.Rand) (*Fish, error) {
	return NewFish(name, RandomSpecies(rng))
}

func (f Fish) ID() FishID        { return f.id }
func (f Fish) Name() string      { return f.name }
func (f Fish) Species() Species  { return f.species }
func (f Fish) Health() int       { return f.health }
func (f Fish) Age() int          { return f.age }
func (f Fish) Size() int         { return f.size }
func (f Fish) HungerRate() int   { return f.hungerRate }
func (f Fish) SoilRate() float64 { return f.soilRate }
func (f Fish) IsDead() bool      { return f.health <= 0 }

// Soil は1ステップあたりに水槽を汚す量。
func (f Fish) Soil() float64 { return float64(f.size) * f.soilRate }

// PointsWorth は1ステップあたりに所有者へ与えるポイント。死んだ魚は0。
func (f Fish) PointsWorth() int {
	if f.IsDead() {
		return 0
	}
	return f.size
}

// Rename は名前を変更する。現在と同じ名前は拒否する。
func (f *Fish) Rename(name string) error {
	trimmed, err := ValidateFishName(name)
	if err != nil {
		return err
	}
	if f.name == trimmed {
		return ErrSameName
	}
	f.name = trimmed
	return nil
}

// ApplyHunger は空腹による体力減少を1回分適用する。死んだ魚は変化しない。
func (f *Fish) ApplyHunger() {
	if f.IsDead() {
		return
	}
	f.health = clampInt(f.health-f.hungerRate, 0, MaxHealth)
}

// Grow は1ステップ分の成長判定を行い、サイズが増えたら true を返す。
// 体力が MinHealthToGrow 未満の魚は年齢もサイズも変わらない。
func (f *Fish) Grow() bool {
	if f.health < MinHealthToGrow {
		return false
	}
	f.age++
	if f.age <= f.size {
		return false
	}
	f.age = 0
	if f.size >= MaxSize {
		return false
	}
	f.size++
	return true
}

// Feed は amount だけ体力を回復する。上限は MaxHealth。
func (f *Fish) Feed(amount int) error {
	if amount <= 0 {
		return invalidf("food amount must be positive, got %d", amount)
	}
	if f.IsDead() {
		return ErrFishDead
	}
	f.health = clampInt(f.health+amount, 0, MaxHealth)
	return nil
}

// FeedFull は体力を MaxHealth まで回復する。
func (f *Fish) FeedFull() error {
	if f.IsDead() {
		return ErrFishDead
	}
	f.health = MaxHealth
	return nil
}

func (f Fish) String() string {
	return fmt.Sprintf("%s the %s - Health: %d/%d, Size: %d, Age: %d",
		f.name, f.species, f.health, MaxHealth, f.size, f.age)
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
