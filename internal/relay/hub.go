package relay

import (
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/collab-client/wire"
)

type Conn interface {
	Send(msg wire.Message) error
	Close() error
	UserID() string
	RoomID() string
}

type member struct {
	joinedAt time.Time
	lastSeen time.Time
}

// Hub держит подключения по комнатам и раздаёт кадры. Ретрансляция
// best-effort: упавшая запись одному клиенту не мешает остальным.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[Conn]*member
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[Conn]*member)}
}

func (h *Hub) Add(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[c.RoomID()]
	if !ok {
		rs = make(map[Conn]*member)
		h.rooms[c.RoomID()] = rs
	}
	now := time.Now()
	rs[c] = &member{joinedAt: now, lastSeen: now}
}

func (h *Hub) Remove(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rs, ok := h.rooms[c.RoomID()]; ok {
		delete(rs, c)
		if len(rs) == 0 {
			delete(h.rooms, c.RoomID())
		}
	}
}

// Touch обновляет lastSeen по heartbeat-кадру.
func (h *Hub) Touch(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if m, ok := h.rooms[c.RoomID()][c]; ok {
		m.lastSeen = time.Now()
	}
}

// Broadcast — всем в комнате, включая отправителя.
func (h *Hub) Broadcast(roomID string, msg wire.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[roomID] {
		_ = c.Send(msg) // best-effort
	}
}

// BroadcastExcept — всем, кроме исходного подключения. Клиентский
// транспорт своё эхо и так давит, но гонять кадр обратно незачем.
func (h *Hub) BroadcastExcept(roomID string, from Conn, msg wire.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[roomID] {
		if c == from {
			continue
		}
		_ = c.Send(msg)
	}
}

// Roster — снапшот участников комнаты для online_list.
func (h *Hub) Roster(roomID string) []wire.RosterEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rs := h.rooms[roomID]
	out := make([]wire.RosterEntry, 0, len(rs))
	for c, m := range rs {
		out = append(out, wire.RosterEntry{
			UserID:   c.UserID(),
			JoinedAt: m.joinedAt.UnixMilli(),
			LastSeen: m.lastSeen.UnixMilli(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
