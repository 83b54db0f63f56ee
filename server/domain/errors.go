package domain

import (
	"errors"
	"fmt"

	appdomain "carekeeper/application/domain"
)

var (
	// ErrBackpressure は書き込みチャネルが満杯の場合に返されるエラーです。
	ErrBackpressure = errors.New("write channel is full, apply backpressure")
	// ErrInitializationFailed はセッションエンドポイントの初期化に失敗した場合に返されるエラーです。
	ErrInitializationFailed = errors.New("failed to initialize session endpoint")
	// ErrTransportFailure は接続の読み書きに失敗した場合に返されるエラーです。
	ErrTransportFailure = fmt.Errorf("connection: %w", appdomain.ErrTransport)
)

// ErrorMessage はドメインエラーをセッションに返す1行の文に変換します。
func ErrorMessage(err error) string {
	var ve *appdomain.ValidationError
	switch {
	case errors.As(err, &ve):
		return "Invalid input: " + ve.Reason + "."
	case errors.Is(err, appdomain.ErrValidation):
		return "Invalid input. Please try again."
	case errors.Is(err, appdomain.ErrFishNotFound):
		return "No fish with that name was found in your tank."
	case errors.Is(err, appdomain.ErrUserNotFound):
		return "Your user profile could not be found."
	case errors.Is(err, appdomain.ErrTooManyFish):
		return fmt.Sprintf("Your tank is full! You can own at most %d fish.", appdomain.MaxFish)
	case errors.Is(err, appdomain.ErrCapacity):
		return "That would exceed a limit."
	case errors.Is(err, appdomain.ErrFishDead):
		return "That fish has died and can not be fed."
	case errors.Is(err, appdomain.ErrDuplicateUser):
		return MsgUsernameTaken
	case errors.Is(err, appdomain.ErrState):
		return "That action is not possible right now."
	case errors.Is(err, appdomain.ErrIntegration):
		return "The fish fact service is unavailable right now. Please try again later."
	default:
		return "Something went wrong. Please try again."
	}
}

// loginFailReason は LOGIN:FAIL に続く説明行を返します。
func loginFailReason(err error) string {
	var ve *appdomain.ValidationError
	switch {
	case errors.Is(err, appdomain.ErrDuplicateUser):
		return MsgUsernameTaken
	case errors.As(err, &ve):
		return "Invalid username: " + ve.Reason + ". Please try again."
	case errors.Is(err, appdomain.ErrValidation):
		return "Invalid username. Please try again."
	default:
		return "Login failed. Please try again."
	}
}
