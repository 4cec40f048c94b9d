package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/collab-client/pkg/errs"
	"github.com/cwrk-planet/collab-client/wire"
)

const writeWait = 5 * time.Second

type Config struct {
	URL string // базовый ws-эндпоинт, identity добавляется query-параметрами

	HeartbeatEvery time.Duration
	ReconnectEvery time.Duration
	MaxReconnects  int
	DialTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.HeartbeatEvery == 0 {
		c.HeartbeatEvery = 30 * time.Second
	}
	if c.ReconnectEvery <= 0 {
		c.ReconnectEvery = 3 * time.Second
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 3
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	return c
}

// Transport — одна ws-сессия на комнату: dial, heartbeat, ограниченный
// реконнект и диспетчеризация входящих кадров по подписчикам.
type Transport struct {
	cfg    Config
	events *Events
	log    *slog.Logger

	sendSem chan struct{} // сериализует запись в сокет

	mu     sync.Mutex
	conn   *websocket.Conn
	gen    int // поколение соединения, растёт на каждом успешном dial
	status Status
	roomID string
	userID string
	roster wire.OnlineListPayload

	runCtx context.Context
	cancel context.CancelFunc
}

func NewTransport(cfg Config) *Transport {
	return &Transport{
		cfg:     cfg.withDefaults(),
		events:  NewEvents(),
		log:     slog.Default(),
		sendSem: make(chan struct{}, 1),
		status:  StatusDisconnected,
	}
}

func (t *Transport) Events() *Events { return t.events }

func (t *Transport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Transport) RoomID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.roomID
}

func (t *Transport) UserID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.userID
}

// Roster — последний снапшот online_list, для поздно подписавшихся.
func (t *Transport) Roster() wire.OnlineListPayload {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.roster
}

// Connect открывает сокет и запускает read/heartbeat циклы. Возвращается
// после успешного открытия; при ошибке dial-а сессия переходит в error.
func (t *Transport) Connect(ctx context.Context, roomID, userID string) error {
	t.mu.Lock()
	if t.status == StatusConnected || t.status == StatusConnecting {
		t.mu.Unlock()
		return fmt.Errorf("session %s already active", t.roomID)
	}
	t.roomID, t.userID = roomID, userID
	runCtx, cancel := context.WithCancel(context.Background())
	t.runCtx, t.cancel = runCtx, cancel
	t.status = StatusConnecting
	t.mu.Unlock()
	t.events.EmitStatus(StatusConnecting)

	dctx, dcancel := context.WithTimeout(ctx, t.cfg.DialTimeout)
	defer dcancel()

	conn, err := t.dial(dctx, roomID, userID)
	if err != nil {
		cancel()
		t.mu.Lock()
		t.status = StatusError
		t.roomID, t.userID = "", ""
		t.mu.Unlock()
		t.events.EmitStatus(StatusError)
		return fmt.Errorf("%w: %v", errs.ErrDial, err)
	}

	t.install(conn, runCtx)
	return nil
}

// Disconnect — штатное закрытие: close-фрейм с нормальным кодом, остановка
// heartbeat-а, отмена запланированного реконнекта, сброс identity.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	conn := t.conn
	t.conn = nil
	t.gen++
	t.roomID, t.userID = "", ""
	t.roster = wire.OnlineListPayload{}
	already := t.status == StatusDisconnected
	t.status = StatusDisconnected
	t.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(writeWait)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}
	if !already {
		t.events.EmitStatus(StatusDisconnected)
	}
}

// Send сериализует и пишет кадр, если сокет открыт; иначе кадр теряется
// (исходящей очереди нет, это документированное ограничение). Кадр без
// correlation id получает его перед записью, кроме ack-ов.
func (t *Transport) Send(msg wire.Message) {
	t.mu.Lock()
	conn, st := t.conn, t.status
	roomID, userID := t.roomID, t.userID
	t.mu.Unlock()

	if st != StatusConnected || conn == nil {
		t.log.Debug("drop outbound frame: not connected", "type", msg.Type)
		return
	}

	if msg.RoomID == "" {
		msg.RoomID = roomID
	}
	if msg.SenderID == "" {
		msg.SenderID = userID
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	if msg.Type != wire.KindAck && msg.CorrelationID == 0 {
		msg.CorrelationID = wire.NewCorrelationID()
	}

	if err := t.write(conn, msg); err != nil {
		// ошибки сериализации/записи не роняют сессию и не всплывают наверх
		t.log.Warn("ws write failed", "type", msg.Type, "err", err)
	}
}

func (t *Transport) write(conn *websocket.Conn, msg wire.Message) error {
	t.sendSem <- struct{}{}
	defer func() { <-t.sendSem }()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

func (t *Transport) dial(ctx context.Context, roomID, userID string) (*websocket.Conn, error) {
	q := url.Values{}
	q.Set("roomId", roomID)
	q.Set("userId", userID)

	d := websocket.Dialer{HandshakeTimeout: t.cfg.DialTimeout}
	conn, _, err := d.DialContext(ctx, t.cfg.URL+"?"+q.Encode(), nil)
	return conn, err
}

func (t *Transport) install(conn *websocket.Conn, runCtx context.Context) {
	t.mu.Lock()
	t.conn = conn
	t.gen++
	gen := t.gen
	t.status = StatusConnected
	t.mu.Unlock()
	t.events.EmitStatus(StatusConnected)

	done := make(chan struct{})
	go t.readLoop(conn, gen, done, runCtx)
	go t.heartbeatLoop(done, runCtx)
}

func (t *Transport) readLoop(conn *websocket.Conn, gen int, done chan struct{}, runCtx context.Context) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.onConnLost(gen, err, runCtx)
			return
		}
		msg, perr := decodeFrame(data)
		if perr != nil {
			t.log.Warn("malformed inbound frame", "err", perr)
			continue
		}
		t.dispatch(msg)
	}
}

// onConnLost решает, тянет ли обрыв за собой реконнект: только неожиданное
// закрытие (код ≠ normal closure) при живой identity.
func (t *Transport) onConnLost(gen int, err error, runCtx context.Context) {
	t.mu.Lock()
	if gen != t.gen || t.status == StatusDisconnected {
		// соединение уже заменено или штатно закрыто
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.status = StatusDisconnected
	identity := t.roomID != ""
	t.mu.Unlock()

	t.events.EmitStatus(StatusDisconnected)

	if !identity || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		return
	}
	t.log.Warn("ws connection lost", "err", err)
	go t.reconnectLoop(runCtx)
}

func (t *Transport) reconnectLoop(runCtx context.Context) {
	// фиксированная пауза перед первой попыткой
	select {
	case <-time.After(t.cfg.ReconnectEvery):
	case <-runCtx.Done():
		return
	}

	t.mu.Lock()
	if t.roomID == "" {
		t.mu.Unlock()
		return
	}
	t.status = StatusConnecting
	t.mu.Unlock()
	t.events.EmitStatus(StatusConnecting)

	attempt := 0
	op := func() error {
		t.mu.Lock()
		roomID, userID := t.roomID, t.userID
		t.mu.Unlock()
		if roomID == "" {
			return backoff.Permanent(errs.ErrClosed)
		}

		attempt++
		dctx, cancel := context.WithTimeout(runCtx, t.cfg.DialTimeout)
		defer cancel()

		conn, err := t.dial(dctx, roomID, userID)
		if err != nil {
			t.log.Warn("reconnect attempt failed", "attempt", attempt, "err", err)
			return err
		}

		t.install(conn, runCtx)
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(t.cfg.ReconnectEvery), uint64(t.cfg.MaxReconnects-1)),
		runCtx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		t.mu.Lock()
		t.status = StatusDisconnected
		t.mu.Unlock()
		t.events.EmitStatus(StatusDisconnected)
		t.events.EmitError(fmt.Errorf("%w after %d attempts: %v", errs.ErrRetryExhausted, attempt, err))
	}
}

func (t *Transport) heartbeatLoop(done chan struct{}, runCtx context.Context) {
	if t.cfg.HeartbeatEvery < 0 {
		return
	}
	tick := time.NewTicker(t.cfg.HeartbeatEvery)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			// чистый keep-alive: ответа не ждём и живость по нему не меряем
			t.Send(wire.Message{Type: wire.KindHeartbeat})
		case <-done:
			return
		case <-runCtx.Done():
			return
		}
	}
}
