package service

import (
	"carekeeper/application/domain"
)

// SimpleValidator は domain の名前規則に委譲するデフォルト実装。
type SimpleValidator struct{}

func (SimpleValidator) Username(raw string) (string, error) {
	return domain.ValidateUsername(raw)
}

func (SimpleValidator) FishName(raw string) error {
	_, err := domain.ValidateFishName(raw)
	return err
}
