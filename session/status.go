package session

// Status — состояние сессии комнаты. Переходы:
// disconnected → connecting → connected → disconnected (штатно),
// connected → disconnected → connecting → connected (реконнект),
// connecting|connected → error (сбой dial-а).
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)
