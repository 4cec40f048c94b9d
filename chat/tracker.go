package chat

import (
	"fmt"
	"sync"

	"github.com/cwrk-planet/collab-client/session"
	"github.com/cwrk-planet/collab-client/wire"
)

// Состояние исходящего сообщения в UI: sending → sent → delivered.
// Ретраев по отсутствию ack нет — подтверждение это best-effort индикация,
// а не гарантия доставки.
type State string

const (
	StateSending   State = "sending"
	StateSent      State = "sent"
	StateDelivered State = "delivered"
)

// seenLimit ограничивает окно дедупликации входящих; только память сессии.
const seenLimit = 4096

// Tracker ведёт pending-подтверждения исходящего чата и дедупликацию
// входящего (at-least-once со стороны сервера → повторы возможны).
type Tracker struct {
	mu      sync.Mutex
	pending map[int64]State
	seen    map[string]struct{}
	order   []string
}

func NewTracker() *Tracker {
	return &Tracker{
		pending: make(map[int64]State),
		seen:    make(map[string]struct{}),
	}
}

// Track регистрирует исходящее сообщение до записи в сокет.
func (t *Tracker) Track(correlationID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[correlationID] = StateSending
}

// MarkSent — кадр ушёл в сокет.
func (t *Tracker) MarkSent(correlationID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[correlationID]; ok {
		t.pending[correlationID] = StateSent
	}
}

// Deliver сводит входящий ack с pending-отправкой. true, если это был наш id.
func (t *Tracker) Deliver(correlationID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[correlationID]; !ok {
		return false
	}
	t.pending[correlationID] = StateDelivered
	return true
}

func (t *Tracker) State(correlationID int64) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.pending[correlationID]
	return s, ok
}

// MarkSeen — дедупликация входящего чата по (senderId, correlationId).
// true при первой встрече, false для повтора.
func (t *Tracker) MarkSeen(senderID string, correlationID int64) bool {
	key := fmt.Sprintf("%s:%d", senderID, correlationID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.seen[key]; dup {
		return false
	}
	t.seen[key] = struct{}{}
	t.order = append(t.order, key)
	if len(t.order) > seenLimit {
		delete(t.seen, t.order[0])
		t.order = t.order[1:]
	}
	return true
}

// Attach подписывает трекер на события сессии: ack-и закрывают pending,
// входящий чат прогоняется через дедупликацию и отдаётся в onChat.
// Возвращает функцию отписки.
func (t *Tracker) Attach(ev *session.Events, onChat func(wire.Message)) func() {
	return ev.OnMessage(func(m wire.Message) {
		switch m.Type {
		case wire.KindAck:
			t.Deliver(m.CorrelationID)
		case wire.KindChat:
			if t.MarkSeen(m.SenderID, m.CorrelationID) && onChat != nil {
				onChat(m)
			}
		}
	})
}
