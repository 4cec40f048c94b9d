package collab

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/collab-client/session"
	"github.com/cwrk-planet/collab-client/wire"
)

// Decoration — подсветка одной изменённой строки у зрителя. Живёт
// фиксированный TTL от момента создания (таймер не продлевается) либо до
// прихода нового изменения той же строки.
type Decoration struct {
	ID         uint64
	LineNumber int
	ChangeType wire.ChangeType
	OldContent string
	NewContent string
	CreatedAt  time.Time
}

type ViewerConfig struct {
	SelfID string

	DecorationTTL  time.Duration // default 5s
	SyncApplyDelay time.Duration // 0 — применять сразу

	// Колбэки рендера; любой может быть nil.
	OnBufferReplaced    func(code, language string)
	OnDecoration        func(Decoration)
	OnDecorationExpired func(Decoration)
	OnShareStart        func(sharerID string)
	OnShareEnd          func()
}

// Viewer — приёмная сторона код-шаринга: транзиентные декорации по дифам,
// отложенное применение снапшотов, отбрасывание устаревших по seq.
type Viewer struct {
	cfg ViewerConfig

	mu       sync.Mutex
	sharerID string
	language string
	buffer   string
	lastSeq  map[string]uint64   // последний применённый seq по каждому шареру
	decos    map[int]*Decoration // активная декорация на строку
	nextID   uint64
	applying bool
}

func NewViewer(cfg ViewerConfig) *Viewer {
	if cfg.DecorationTTL <= 0 {
		cfg.DecorationTTL = 5 * time.Second
	}
	if cfg.SyncApplyDelay < 0 {
		cfg.SyncApplyDelay = 0
	}
	return &Viewer{
		cfg:     cfg,
		lastSeq: make(map[string]uint64),
		decos:   make(map[int]*Decoration),
	}
}

// Attach подписывает зрителя на кадры код-шаринга сессии.
// Возвращает общую функцию отписки.
func (v *Viewer) Attach(ev *session.Events) func() {
	offs := []func(){
		ev.OnCode(wire.KindCodeShareStart, v.HandleShareStart),
		ev.OnCode(wire.KindCodeShareEnd, v.HandleShareEnd),
		ev.OnCode(wire.KindCodeLineChange, v.HandleLineChanges),
		ev.OnCode(wire.KindCodeSync, v.HandleSync),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

// HandleShareStart: новый отправитель становится шарером, его начальное
// состояние замещает локальный буфер.
func (v *Viewer) HandleShareStart(m wire.Message) {
	if m.SenderID == v.cfg.SelfID {
		return
	}
	var p wire.ShareStartPayload
	if err := m.DecodePayload(&p); err != nil {
		slog.Warn("bad share_start payload", "err", err)
		return
	}

	v.mu.Lock()
	v.sharerID = m.SenderID
	v.language = p.Language
	v.buffer = p.InitialCode
	delete(v.lastSeq, m.SenderID) // нумерация снапшотов начинается заново
	v.mu.Unlock()

	if v.cfg.OnShareStart != nil {
		v.cfg.OnShareStart(m.SenderID)
	}
	if v.cfg.OnBufferReplaced != nil {
		v.cfg.OnBufferReplaced(p.InitialCode, p.Language)
	}
}

// HandleShareEnd снимает шарера, но только текущего: чужой share_end
// (от уже вытесненного отправителя) игнорируется.
func (v *Viewer) HandleShareEnd(m wire.Message) {
	v.mu.Lock()
	if v.sharerID == "" || m.SenderID != v.sharerID {
		v.mu.Unlock()
		return
	}
	v.sharerID = ""
	v.decos = make(map[int]*Decoration)
	v.mu.Unlock()

	if v.cfg.OnShareEnd != nil {
		v.cfg.OnShareEnd()
	}
}

// HandleLineChanges рисует декорации пачки дифов. Сломанная строка пачки
// логируется и пропускается, остальные обрабатываются.
func (v *Viewer) HandleLineChanges(m wire.Message) {
	if m.SenderID == v.cfg.SelfID {
		return
	}
	var p wire.CodeLineChangePayload
	if err := m.DecodePayload(&p); err != nil {
		slog.Warn("bad line_change payload", "err", err)
		return
	}

	for _, c := range p.Changes {
		if c.LineNumber < 1 || !validChangeType(c.ChangeType) {
			slog.Warn("skip malformed line change",
				"line", c.LineNumber, "changeType", c.ChangeType)
			continue
		}
		v.addDecoration(c)
	}
}

func validChangeType(t wire.ChangeType) bool {
	return t == wire.ChangeAdded || t == wire.ChangeModified || t == wire.ChangeDeleted
}

func (v *Viewer) addDecoration(c wire.CodeLineChange) {
	v.mu.Lock()
	old := v.decos[c.LineNumber]
	v.nextID++
	d := &Decoration{
		ID:         v.nextID,
		LineNumber: c.LineNumber,
		ChangeType: c.ChangeType,
		OldContent: c.OldContent,
		NewContent: c.NewContent,
		CreatedAt:  time.Now(),
	}
	v.decos[c.LineNumber] = d
	v.mu.Unlock()

	if old != nil && v.cfg.OnDecorationExpired != nil {
		// новая правка той же строки снимает старую подсветку досрочно
		v.cfg.OnDecorationExpired(*old)
	}
	if v.cfg.OnDecoration != nil {
		v.cfg.OnDecoration(*d)
	}

	id, line := d.ID, d.LineNumber
	time.AfterFunc(v.cfg.DecorationTTL, func() {
		v.expireDecoration(line, id)
	})
}

// истечение адресное: к этому моменту строку могла занять новая декорация
func (v *Viewer) expireDecoration(line int, id uint64) {
	v.mu.Lock()
	d, ok := v.decos[line]
	if !ok || d.ID != id {
		v.mu.Unlock()
		return
	}
	delete(v.decos, line)
	v.mu.Unlock()

	if v.cfg.OnDecorationExpired != nil {
		v.cfg.OnDecorationExpired(*d)
	}
}

// HandleSync применяет авторитетный снапшот. Самофильтрация здесь
// дублирует транспортную — осознанно, по контракту протокольного слоя.
// Снапшот с seq не новее уже применённого от того же шарера отбрасывается.
func (v *Viewer) HandleSync(m wire.Message) {
	if m.SenderID == v.cfg.SelfID {
		return
	}
	var p wire.CodeSyncPayload
	if err := m.DecodePayload(&p); err != nil {
		slog.Warn("bad code_sync payload", "err", err)
		return
	}

	v.mu.Lock()
	if p.Seq != 0 {
		if last, ok := v.lastSeq[m.SenderID]; ok && p.Seq <= last {
			v.mu.Unlock()
			slog.Debug("drop stale code_sync", "sender", m.SenderID, "seq", p.Seq, "last", last)
			return
		}
		v.lastSeq[m.SenderID] = p.Seq
	}
	// guard взводится сразу: правки редактора до применения — не наши
	v.applying = true
	v.mu.Unlock()

	apply := func() {
		v.mu.Lock()
		v.buffer = p.Code
		if p.Language != "" {
			v.language = p.Language
		}
		lang := v.language
		v.applying = false
		v.mu.Unlock()

		if v.cfg.OnBufferReplaced != nil {
			v.cfg.OnBufferReplaced(p.Code, lang)
		}
	}

	// пауза даёт только что нарисованным декорациям мелькнуть до замены текста
	if v.cfg.SyncApplyDelay == 0 {
		apply()
		return
	}
	time.AfterFunc(v.cfg.SyncApplyDelay, apply)
}

// Applying — guard для обработчика правок редактора: true, пока
// применяется чужой снапшот, и такие правки нельзя рассылать как свои.
func (v *Viewer) Applying() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.applying
}

func (v *Viewer) Buffer() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.buffer
}

func (v *Viewer) Language() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.language
}

func (v *Viewer) SharerID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sharerID
}

// Decorations — активные подсветки, для перерисовки.
func (v *Viewer) Decorations() []Decoration {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Decoration, 0, len(v.decos))
	for _, d := range v.decos {
		out = append(out, *d)
	}
	return out
}
