package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/collab-client/wire"
)

// Server — референсный релей протокола: принимает ws-подключения комнат и
// раздаёт кадры остальным участникам. Ничего не хранит дольше сессии.
type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
}

func NewServer(hub *Hub) *Server {
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// WS endpoint: GET /ws?roomId=...&userId=...
// Identity заявляется клиентом в query — граница доверия на стороне сервера.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roomID := strings.TrimSpace(q.Get("roomId"))
	userID := strings.TrimSpace(q.Get("userId"))
	if roomID == "" || userID == "" {
		http.Error(w, "missing roomId or userId", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newRelayConn(conn, roomID, userID)
	s.hub.Add(c)

	join := wire.New(wire.KindJoin, roomID, userID)
	s.hub.BroadcastExcept(roomID, c, join)
	s.broadcastRoster(roomID)

	s.readLoop(c)

	s.hub.Remove(c)
	s.hub.BroadcastExcept(roomID, c, wire.New(wire.KindLeave, roomID, userID))
	s.broadcastRoster(roomID)

	if err := c.Close(); err != nil {
		slog.Debug("ws close failed", "room", roomID, "user", userID, "err", err)
	}
}

func (s *Server) broadcastRoster(roomID string) {
	msg, err := wire.New(wire.KindOnlineList, roomID, "").
		WithPayload(wire.OnlineListPayload{RoomID: roomID, Users: s.hub.Roster(roomID)})
	if err != nil {
		slog.Warn("encode roster failed", "room", roomID, "err", err)
		return
	}
	s.hub.Broadcast(roomID, msg)
}

func (s *Server) readLoop(c *relayConn) {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(1 << 20)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wire.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("drop malformed frame", "room", c.roomID, "user", c.userID, "err", err)
			continue
		}

		// identity кадра всегда серверная, что бы клиент ни прислал
		msg.SenderID = c.userID
		msg.RoomID = c.roomID
		if msg.Timestamp == 0 {
			msg.Timestamp = time.Now().UnixMilli()
		}

		switch msg.Type {
		case wire.KindHeartbeat:
			s.hub.Touch(c)
		case wire.KindChat:
			if msg.Payload == nil {
				msg.Payload = map[string]any{}
			}
			msg.Payload["msgId"] = uuid.NewString()
			s.hub.BroadcastExcept(c.roomID, c, msg)
		default:
			s.hub.BroadcastExcept(c.roomID, c, msg)
		}
	}
}

type relayConn struct {
	conn    *websocket.Conn
	roomID  string
	userID  string
	sendMu  chan struct{}
	closedc chan struct{}
}

func newRelayConn(c *websocket.Conn, roomID, userID string) *relayConn {
	return &relayConn{
		conn:    c,
		roomID:  roomID,
		userID:  userID,
		sendMu:  make(chan struct{}, 1),
		closedc: make(chan struct{}),
	}
}

func (c *relayConn) Send(msg wire.Message) error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	return c.conn.WriteJSON(msg)
}

func (c *relayConn) Close() error {
	select {
	case <-c.closedc:
	default:
		close(c.closedc)
	}

	return c.conn.Close()
}

func (c *relayConn) UserID() string { return c.userID }
func (c *relayConn) RoomID() string { return c.roomID }
