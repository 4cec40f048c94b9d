package session

import "sync"

// Registry — по одному Transport на комнату, общий для всех потребителей UI.
// Не глобальный синглтон: владелец создаёт реестр явно и отвечает за Close.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Transport
	closed   bool
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Transport),
	}
}

// Get возвращает транспорт комнаты, создавая его при первом обращении.
// После Close возвращает nil.
func (r *Registry) Get(roomID string) *Transport {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	t, ok := r.sessions[roomID]
	if !ok {
		t = NewTransport(r.cfg)
		r.sessions[roomID] = t
	}
	return t
}

// Release отключает и выбрасывает сессию комнаты.
func (r *Registry) Release(roomID string) {
	r.mu.Lock()
	t, ok := r.sessions[roomID]
	delete(r.sessions, roomID)
	r.mu.Unlock()

	if ok {
		t.Disconnect()
	}
}

// Close — детерминированный teardown всех сессий реестра.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	ts := make([]*Transport, 0, len(r.sessions))
	for _, t := range r.sessions {
		ts = append(ts, t)
	}
	r.sessions = nil
	r.mu.Unlock()

	for _, t := range ts {
		t.Disconnect()
	}
}
