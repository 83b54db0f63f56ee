package domain

import (
	"errors"
	"fmt"
)

// エラー分類。個別のエラーはいずれかの分類をラップしているので errors.Is で判定できる。
var (
	ErrValidation  = errors.New("invalid input")
	ErrNotFound    = errors.New("not found")
	ErrCapacity    = errors.New("capacity exceeded")
	ErrState       = errors.New("invalid state")
	ErrTransport   = errors.New("transport failure")
	ErrIntegration = errors.New("integration failure")
)

var (
	ErrInvalidInput       = fmt.Errorf("%w", ErrValidation)
	ErrSameName           = fmt.Errorf("%w: new name must differ from the current name", ErrValidation)
	ErrUserNotFound       = fmt.Errorf("user %w", ErrNotFound)
	ErrFishNotFound       = fmt.Errorf("fish %w", ErrNotFound)
	ErrTooManyFish        = fmt.Errorf("too many fish: %w", ErrCapacity)
	ErrInsufficientPoints = fmt.Errorf("insufficient points: %w", ErrCapacity)
	ErrDuplicateUser      = fmt.Errorf("duplicate user: %w", ErrState)
	ErrFishDead           = fmt.Errorf("fish is dead: %w", ErrState)
)

// ValidationError は入力検証の失敗理由を保持する。Reason はそのままユーザーに表示できる文。
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return ErrValidation.Error() + ": " + e.Reason }

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func invalidf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
