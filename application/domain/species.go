package domain

import "math/rand/v2"

// Species は魚の種類。生成時に一様ランダムで決まり、以後変わらない。
type Species uint8

const (
	SpeciesAngelFish Species = iota
	SpeciesYellowTang
	SpeciesNeonGoby
	SpeciesClownLoach
	SpeciesSwordtail
	SpeciesCardinalTetra
	SpeciesBristlenosePleco
	SpeciesBetta
	SpeciesTigerBarb
	SpeciesWhiteCloudMountainMinnow
	SpeciesConvictCichlid
	SpeciesClownfish

	speciesCount
)

var speciesNames = [speciesCount]string{
	SpeciesAngelFish:                "Angel Fish",
	SpeciesYellowTang:               "Yellow Tang",
	SpeciesNeonGoby:                 "Neon Goby",
	SpeciesClownLoach:               "Clown Loach",
	SpeciesSwordtail:                "Swordtail",
	SpeciesCardinalTetra:            "Cardinal Tetra",
	SpeciesBristlenosePleco:         "Bristlenose Pleco",
	SpeciesBetta:                    "Betta",
	SpeciesTigerBarb:                "Tiger Barb",
	SpeciesWhiteCloudMountainMinnow: "White Cloud Mountain Minnow",
	SpeciesConvictCichlid:           "Convict Cichlid",
	SpeciesClownfish:                "Clownfish",
}

func (s Species) String() string {
	if s >= speciesCount {
		return "Unknown"
	}
	return speciesNames[s]
}

func (s Species) Valid() bool { return s < speciesCount }

// AllSpecies は定義済みの全種を宣言順に返す。
func AllSpecies() []Species {
	out := make([]Species, 0, speciesCount)
	for s := Species(0); s < speciesCount; s++ {
		out = append(out, s)
	}
	return out
}

// RandomSpecies は rng から一様に種を選ぶ。
func RandomSpecies(rng *rand.Rand) Species {
	return Species(rng.IntN(int(speciesCount)))
}
