package domain

import (
	"strings"
)

// 行プロトコルのマーカー。
const (
	MarkerLoginSuccessful   = "LOGIN:SUCCESSFUL"
	MarkerLoginFail         = "LOGIN:FAIL"
	MarkerFishListStart     = "FISH_LIST:START"
	MarkerFishListEnd       = "FISH_LIST:END"
	MarkerFishListEmpty     = "FISH_LIST:EMPTY"
	MarkerFishListError     = "FISH_LIST:ERROR"
	MarkerStatusUpdateStart = "STATUS_UPDATE:START"
	MarkerStatusUpdateEnd   = "STATUS_UPDATE:END"

	// CancelToken はサブダイアログを変更なしで中断するクライアント送信の文字列です。
	CancelToken = "!cancel"
)

// 固定の応答文。
const (
	MsgWelcome        = "Welcome to CareKeeper Aquarium!"
	MsgUsernameTaken  = "Username already logged in. Please try a different username."
	MsgUnknownCommand = "Unknown command. Please try again."
	MsgCancelled      = "Cancelled. No changes made"
)

type Command uint8

const (
	CommandUnknown Command = iota
	CommandAddFish
	CommandViewFish
	CommandFeedFish
	CommandRemoveFish
	CommandCleanTank
	CommandViewTank
	CommandGetFishFact
	CommandQuit
)

var commandNames = map[string]Command{
	"add-fish":      CommandAddFish,
	"view-fish":     CommandViewFish,
	"feed-fish":     CommandFeedFish,
	"remove-fish":   CommandRemoveFish,
	"clean-tank":    CommandCleanTank,
	"view-tank":     CommandViewTank,
	"get-fish-fact": CommandGetFishFact,
	"quit":          CommandQuit,
	"exit":          CommandQuit,
}

// ParseCommand は前後の空白を除き、大文字小文字を無視して完全一致で判定します。
func ParseCommand(line string) Command {
	if cmd, ok := commandNames[strings.ToLower(strings.TrimSpace(line))]; ok {
		return cmd
	}
	return CommandUnknown
}

func (c Command) String() string {
	for name, cmd := range commandNames {
		if cmd == c && name != "exit" {
			return name
		}
	}
	return "unknown"
}

// IsCancel はサブダイアログの中断トークンかどうかを判定します。
func IsCancel(line string) bool {
	return strings.EqualFold(strings.TrimSpace(line), CancelToken)
}

// EncodeLines は複数行を1フレームにまとめます。フレーム末尾に改行は付けません。
func EncodeLines(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n"))
}

func EncodeStatusUpdate(summary string) []byte {
	return EncodeLines(MarkerStatusUpdateStart, summary, MarkerStatusUpdateEnd)
}

func EncodeFishList(names []string) []byte {
	if len(names) == 0 {
		return EncodeLines(MarkerFishListEmpty)
	}
	lines := make([]string, 0, len(names)+2)
	lines = append(lines, MarkerFishListStart)
	lines = append(lines, names...)
	lines = append(lines, MarkerFishListEnd)
	return EncodeLines(lines...)
}

func EncodeLoginSuccess(username string) []byte {
	return EncodeLines(MarkerLoginSuccessful, "Login successful! Welcome, "+username+".")
}

func EncodeLoginFail(reason string) []byte {
	return EncodeLines(MarkerLoginFail, reason)
}

func EncodeGoodbye(username string) []byte {
	return EncodeLines("Goodbye, " + username + "!")
}
