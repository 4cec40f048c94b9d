package session

import (
	"encoding/json"
	"fmt"

	"github.com/cwrk-planet/collab-client/pkg/errs"
	"github.com/cwrk-planet/collab-client/wire"
)

func decodeFrame(data []byte) (wire.Message, error) {
	var msg wire.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return wire.Message{}, fmt.Errorf("%w: %v", errs.ErrInvalidPayload, err)
	}
	if msg.Type == "" {
		return wire.Message{}, fmt.Errorf("%w: missing type", errs.ErrInvalidPayload)
	}
	return msg, nil
}

// dispatch разруливает входящий кадр. Порядок важен: авто-ack уходит ДО
// обработки, безусловно — получатель не может отказаться подтверждать.
func (t *Transport) dispatch(msg wire.Message) {
	t.mu.Lock()
	self := t.userID
	roomID := t.roomID
	t.mu.Unlock()

	if msg.CorrelationID != 0 && msg.Type != wire.KindAck && msg.Type != wire.KindHeartbeat {
		t.Send(wire.NewAck(roomID, self, msg.CorrelationID))
	}

	switch {
	case msg.Type == wire.KindOnlineList:
		var p wire.OnlineListPayload
		if err := msg.DecodePayload(&p); err != nil {
			t.log.Warn("bad online_list payload", "err", err)
			return
		}
		t.mu.Lock()
		t.roster = p
		t.mu.Unlock()
		t.events.EmitOnline(p)

	case msg.Type == wire.KindHeartbeat:
		// keep-alive собеседника, наружу не отдаём

	case msg.Type == wire.KindAck:
		// отдаём в общий канал: вызывающий сводит его со своими pending
		t.events.EmitMessage(msg)

	case msg.Type == wire.KindSystem, msg.Type == wire.KindNotification:
		// намеренно глушим, чтобы не шуметь в UI

	case msg.Type == wire.KindError:
		t.events.EmitError(fmt.Errorf("%w: %s", errs.ErrRemote, msg.Content))

	case msg.Type.IsCode():
		// своё эхо давим на этом уровне; code_sync дополнительно
		// фильтруется в протокольном слое
		if msg.SenderID != self {
			t.events.EmitCode(msg)
		}

	default:
		t.events.EmitMessage(msg)
	}
}
