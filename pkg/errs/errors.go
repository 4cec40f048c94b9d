package errs

import "errors"

// Таксономия ошибок SDK: транспортные, протокольные и терминальные
// (исчерпан лимит переподключений). Сравнивать через errors.Is.
var (
	ErrNotConnected   = errors.New("session is not connected")
	ErrClosed         = errors.New("session closed")
	ErrDial           = errors.New("dial failed")
	ErrRetryExhausted = errors.New("reconnect attempts exhausted")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrRemote         = errors.New("remote error")
)

// Terminal — сессия больше сама не восстановится, нужен новый Connect.
func Terminal(err error) bool {
	return errors.Is(err, ErrRetryExhausted) || errors.Is(err, ErrClosed)
}
