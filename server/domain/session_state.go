package domain

// SessionState はプロトコル状態機械の状態です。
type SessionState uint32

const (
	StateAwaitingLogin SessionState = iota
	StateActive
	StateAwaitingSubdialog
	StateTerminated
)

func (s SessionState) String() string {
	switch s {
	case StateAwaitingLogin:
		return "awaiting_login"
	case StateActive:
		return "active"
	case StateAwaitingSubdialog:
		return "awaiting_subdialog"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// SubdialogKind は複数行にまたがるやり取りの種類です。
type SubdialogKind uint8

const (
	SubdialogNone SubdialogKind = iota
	SubdialogRemoveFish
)

func (k SubdialogKind) String() string {
	switch k {
	case SubdialogRemoveFish:
		return "remove-fish"
	default:
		return "none"
	}
}
