package wire

import (
	"encoding/json"
	"time"
)

// Типы кадров, которые ходят по сокету комнаты.
type Kind string

const (
	KindChat         Kind = "chat"
	KindSystem       Kind = "system"
	KindJoin         Kind = "join"
	KindLeave        Kind = "leave"
	KindOnlineList   Kind = "online_list"
	KindHeartbeat    Kind = "heartbeat"
	KindError        Kind = "error"
	KindNotification Kind = "notification"
	KindAck          Kind = "ack"

	KindCodeShareStart Kind = "code_share_start"
	KindCodeShareEnd   Kind = "code_share_end"
	KindCodeSync       Kind = "code_sync"
	KindCodeLineChange Kind = "code_line_change"
	KindCodeChange     Kind = "code_change"
	KindCodeCursor     Kind = "code_cursor"
	KindCodeSelection  Kind = "code_selection"
	KindCodeDiff       Kind = "code_diff"
)

// IsCode — кадр протокола код-шаринга (диспетчеризуется в code-подписчиков).
func (k Kind) IsCode() bool {
	switch k {
	case KindCodeShareStart, KindCodeShareEnd, KindCodeSync, KindCodeLineChange,
		KindCodeChange, KindCodeCursor, KindCodeSelection, KindCodeDiff:
		return true
	}
	return false
}

// Message — единый конверт кадра. Timestamp — локальное время отправителя (unix ms).
type Message struct {
	Type          Kind           `json:"type"`
	Content       string         `json:"content,omitempty"`
	SenderID      string         `json:"senderId,omitempty"`
	RoomID        string         `json:"roomId,omitempty"`
	Timestamp     int64          `json:"timestamp"`
	CorrelationID int64          `json:"correlationId,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// RosterEntry — участник комнаты в снапшоте online_list.
type RosterEntry struct {
	UserID   string `json:"userId"`
	JoinedAt int64  `json:"joinedAt,omitempty"`
	LastSeen int64  `json:"lastSeen,omitempty"`
}

type OnlineListPayload struct {
	RoomID string        `json:"roomId"`
	Users  []RosterEntry `json:"users"`
}

type ShareStartPayload struct {
	Language    string `json:"language"`
	InitialCode string `json:"initialCode"`
}

// CodeSyncPayload — полный снапшот буфера. Seq монотонно растёт у шарера,
// зритель отбрасывает устаревшие снапшоты.
type CodeSyncPayload struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Seq      uint64 `json:"seq,omitempty"`
}

type CodeLineChangePayload struct {
	Changes []CodeLineChange `json:"changes"`
	Seq     uint64           `json:"seq,omitempty"`
}

// New собирает конверт с текущим временем отправки.
func New(kind Kind, roomID, senderID string) Message {
	return Message{
		Type:      kind,
		RoomID:    roomID,
		SenderID:  senderID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewAck — подтверждение приёма кадра с данным correlation id.
func NewAck(roomID, senderID string, correlationID int64) Message {
	m := New(KindAck, roomID, senderID)
	m.CorrelationID = correlationID
	return m
}

// WithPayload кладёт типизированный payload в конверт через JSON-перегонку.
func (m Message) WithPayload(v any) (Message, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return m, err
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return m, err
	}
	m.Payload = raw
	return m, nil
}

// DecodePayload — обратная перегонка payload в типизированную структуру.
func (m Message) DecodePayload(dst any) error {
	b, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
