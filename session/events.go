package session

import (
	"sync"

	"github.com/cwrk-planet/collab-client/wire"
)

// Events — реестр подписчиков транспорта. Подписки складываются, а не
// затирают друг друга: несколько владельцев UI могут слушать одну сессию.
// Каждый On* возвращает функцию отписки.
type Events struct {
	mu     sync.RWMutex
	nextID int

	message map[int]func(wire.Message)
	status  map[int]func(Status)
	errh    map[int]func(error)
	online  map[int]func(wire.OnlineListPayload)
	code    map[wire.Kind]map[int]func(wire.Message)
}

func NewEvents() *Events {
	return &Events{
		message: make(map[int]func(wire.Message)),
		status:  make(map[int]func(Status)),
		errh:    make(map[int]func(error)),
		online:  make(map[int]func(wire.OnlineListPayload)),
		code:    make(map[wire.Kind]map[int]func(wire.Message)),
	}
}

// OnMessage — чат, ack-и и прочие кадры, не имеющие выделенного канала.
func (e *Events) OnMessage(fn func(wire.Message)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.message[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.message, id)
	}
}

func (e *Events) OnStatus(fn func(Status)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.status[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.status, id)
	}
}

func (e *Events) OnError(fn func(error)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.errh[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.errh, id)
	}
}

func (e *Events) OnOnlineList(fn func(wire.OnlineListPayload)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.online[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.online, id)
	}
}

// OnCode — подписка на конкретный тип кадра код-шаринга
// (code_sync, code_line_change, code_share_start и т.д.).
func (e *Events) OnCode(kind wire.Kind, fn func(wire.Message)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	byID, ok := e.code[kind]
	if !ok {
		byID = make(map[int]func(wire.Message))
		e.code[kind] = byID
	}
	byID[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.code[kind], id)
	}
}

// EmitMessage и прочие Emit* вызываются транспортом; доступны и снаружи —
// протокольные слои и тесты могут вбрасывать синтетические события.
func (e *Events) EmitMessage(m wire.Message) {
	for _, fn := range e.snapshotMessage() {
		fn(m)
	}
}

func (e *Events) EmitStatus(s Status) {
	e.mu.RLock()
	fns := make([]func(Status), 0, len(e.status))
	for _, fn := range e.status {
		fns = append(fns, fn)
	}
	e.mu.RUnlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (e *Events) EmitError(err error) {
	e.mu.RLock()
	fns := make([]func(error), 0, len(e.errh))
	for _, fn := range e.errh {
		fns = append(fns, fn)
	}
	e.mu.RUnlock()
	for _, fn := range fns {
		fn(err)
	}
}

func (e *Events) EmitOnline(p wire.OnlineListPayload) {
	e.mu.RLock()
	fns := make([]func(wire.OnlineListPayload), 0, len(e.online))
	for _, fn := range e.online {
		fns = append(fns, fn)
	}
	e.mu.RUnlock()
	for _, fn := range fns {
		fn(p)
	}
}

func (e *Events) EmitCode(m wire.Message) {
	e.mu.RLock()
	fns := make([]func(wire.Message), 0, len(e.code[m.Type]))
	for _, fn := range e.code[m.Type] {
		fns = append(fns, fn)
	}
	e.mu.RUnlock()
	for _, fn := range fns {
		fn(m)
	}
}

func (e *Events) snapshotMessage() []func(wire.Message) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fns := make([]func(wire.Message), 0, len(e.message))
	for _, fn := range e.message {
		fns = append(fns, fn)
	}
	return fns
}
