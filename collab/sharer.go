package collab

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/collab-client/wire"
)

// Sender — то, куда шарер пишет кадры (в бою *session.Transport).
type Sender interface {
	Send(msg wire.Message)
}

// Sharer рассылает правки локального редактора: построчный диф для
// подсветки и следом полный снапшот как источник истины. Быстрые нажатия
// склеиваются дебаунсом. Оба кадра одного выброса несут общий seq,
// монотонный в пределах шарера.
type Sharer struct {
	out      Sender
	debounce time.Duration

	mu       sync.Mutex
	language string
	last     string // последний разосланный буфер
	pending  string
	dirty    bool
	timer    *time.Timer
	seq      uint64
	active   bool
}

func NewSharer(out Sender, language string, debounce time.Duration) *Sharer {
	return &Sharer{
		out:      out,
		language: language,
		debounce: debounce,
	}
}

// Start объявляет себя шарером комнаты и передаёт начальное состояние.
// Кто был шарером до этого — перестаёт им быть на каждом из клиентов
// (побеждает последний code_share_start, транспорт это не арбитрирует).
func (s *Sharer) Start(initialCode string) {
	s.mu.Lock()
	s.active = true
	s.last = initialCode
	s.pending = initialCode
	s.dirty = false
	lang := s.language
	s.mu.Unlock()

	msg, err := wire.New(wire.KindCodeShareStart, "", "").
		WithPayload(wire.ShareStartPayload{Language: lang, InitialCode: initialCode})
	if err != nil {
		slog.Warn("encode share_start failed", "err", err)
		return
	}
	s.out.Send(msg)
}

// Edit принимает очередное состояние буфера; рассылка случится после
// дебаунс-паузы без новых правок.
func (s *Sharer) Edit(buffer string) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.pending = buffer
	s.dirty = true

	if s.debounce <= 0 {
		s.mu.Unlock()
		s.Flush()
		return
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, s.Flush)
	} else {
		s.timer.Reset(s.debounce)
	}
	s.mu.Unlock()
}

// Flush немедленно рассылает накопленную правку, если она есть.
func (s *Sharer) Flush() {
	s.mu.Lock()
	if !s.active || !s.dirty {
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	oldBuf, newBuf := s.last, s.pending
	s.last = newBuf
	s.dirty = false
	s.seq++
	seq := s.seq
	lang := s.language
	s.mu.Unlock()

	changes := wire.ComputeLineChanges(oldBuf, newBuf)
	if len(changes) > 0 {
		msg, err := wire.New(wire.KindCodeLineChange, "", "").
			WithPayload(wire.CodeLineChangePayload{Changes: changes, Seq: seq})
		if err != nil {
			slog.Warn("encode line changes failed", "err", err)
		} else {
			s.out.Send(msg)
		}
	}

	// снапшот уходит безусловно: диф — только подсветка, истина здесь
	msg, err := wire.New(wire.KindCodeSync, "", "").
		WithPayload(wire.CodeSyncPayload{Code: newBuf, Language: lang, Seq: seq})
	if err != nil {
		slog.Warn("encode code sync failed", "err", err)
		return
	}
	s.out.Send(msg)
}

// End завершает шаринг.
func (s *Sharer) End() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.dirty = false
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	s.out.Send(wire.New(wire.KindCodeShareEnd, "", ""))
}

func (s *Sharer) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Sharer) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}
