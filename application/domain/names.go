package domain

import (
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const MaxNameLength = 50

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)

// ValidateUsername は前後の空白を除いたユーザー名を検証して返す。
func ValidateUsername(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", invalidf("username must not be empty")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", invalidf("username must be at most %d characters", MaxNameLength)
	}
	if !usernamePattern.MatchString(name) {
		return "", invalidf("username can not contain special characters")
	}
	return name, nil
}

// ValidateFishName は前後の空白を除いた魚の名前を検証して返す。
func ValidateFishName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", invalidf("fish name must not be empty")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", invalidf("fish name must be at most %d characters", MaxNameLength)
	}
	return name, nil
}

var fishNameTemplates = []string{
	"Nemo", "Dory", "Bubbles", "Finn", "Gill", "Marlin",
	"Squirt", "Coral", "Goldie", "Splash", "Wanda", "Pearl",
}

// RandomFishName はテンプレートから名前を一つ選ぶ。
func RandomFishName(rng *rand.Rand) string {
	return fishNameTemplates[rng.IntN(len(fishNameTemplates))]
}

// disambiguate は taken に含まれない名前を "base 2", "base 3" ... の順で探す。
func disambiguate(base string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for n := 2; ; n++ {
		suffix := " " + strconv.Itoa(n)
		candidate := truncateRunes(base, MaxNameLength-len(suffix)) + suffix
		if !taken(candidate) {
			return candidate
		}
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
