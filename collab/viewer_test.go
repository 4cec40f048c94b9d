package collab

import (
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/collab-client/session"
	"github.com/cwrk-planet/collab-client/wire"
)

func mustPayload(t *testing.T, m wire.Message, v any) wire.Message {
	t.Helper()
	out, err := m.WithPayload(v)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	return out
}

func TestViewer_ShareLifecycle(t *testing.T) {
	var started, ended []string
	v := NewViewer(ViewerConfig{
		SelfID:       "alice",
		OnShareStart: func(id string) { started = append(started, id) },
		OnShareEnd:   func() { ended = append(ended, "end") },
	})

	v.HandleShareStart(mustPayload(t, wire.New(wire.KindCodeShareStart, "r", "bob"),
		wire.ShareStartPayload{Language: "go", InitialCode: "x := 1"}))

	if v.SharerID() != "bob" || v.Buffer() != "x := 1" || v.Language() != "go" {
		t.Fatalf("share start not adopted: sharer=%q buf=%q lang=%q", v.SharerID(), v.Buffer(), v.Language())
	}

	// новый шарер вытесняет старого
	v.HandleShareStart(mustPayload(t, wire.New(wire.KindCodeShareStart, "r", "carol"),
		wire.ShareStartPayload{Language: "python", InitialCode: "y = 2"}))
	if v.SharerID() != "carol" {
		t.Fatalf("last share_start should win, sharer=%q", v.SharerID())
	}

	// share_end от вытесненного шарера игнорируется
	v.HandleShareEnd(wire.New(wire.KindCodeShareEnd, "r", "bob"))
	if v.SharerID() != "carol" {
		t.Fatal("stale share_end must not clear the current sharer")
	}

	v.HandleShareEnd(wire.New(wire.KindCodeShareEnd, "r", "carol"))
	if v.SharerID() != "" {
		t.Fatal("share_end from the current sharer must clear it")
	}

	if len(started) != 2 || len(ended) != 1 {
		t.Fatalf("callbacks: started=%v ended=%v", started, ended)
	}
}

func TestViewer_SelfSyncSuppressed(t *testing.T) {
	applied := 0
	v := NewViewer(ViewerConfig{
		SelfID:           "alice",
		OnBufferReplaced: func(string, string) { applied++ },
	})

	v.HandleSync(mustPayload(t, wire.New(wire.KindCodeSync, "r", "alice"),
		wire.CodeSyncPayload{Code: "mine", Seq: 1}))
	if applied != 0 || v.Buffer() != "" {
		t.Fatal("own sync must never be applied")
	}
}

func TestViewer_SyncAppliesAfterDelay(t *testing.T) {
	buffers := make(chan string, 1)
	v := NewViewer(ViewerConfig{
		SelfID:           "alice",
		SyncApplyDelay:   20 * time.Millisecond,
		OnBufferReplaced: func(code, _ string) { buffers <- code },
	})

	v.HandleSync(mustPayload(t, wire.New(wire.KindCodeSync, "r", "bob"),
		wire.CodeSyncPayload{Code: "shared", Language: "go", Seq: 1}))

	if !v.Applying() {
		t.Fatal("guard must be up while the remote sync is pending")
	}

	select {
	case code := <-buffers:
		if code != "shared" {
			t.Fatalf("applied %q", code)
		}
	case <-time.After(time.Second):
		t.Fatal("sync never applied")
	}
	if v.Applying() {
		t.Fatal("guard must drop after apply")
	}
	if v.Buffer() != "shared" || v.Language() != "go" {
		t.Fatalf("buffer=%q lang=%q", v.Buffer(), v.Language())
	}
}

func TestViewer_StaleSyncDiscarded(t *testing.T) {
	var mu sync.Mutex
	var applied []string
	v := NewViewer(ViewerConfig{
		SelfID: "alice",
		OnBufferReplaced: func(code, _ string) {
			mu.Lock()
			applied = append(applied, code)
			mu.Unlock()
		},
	})

	v.HandleSync(mustPayload(t, wire.New(wire.KindCodeSync, "r", "bob"),
		wire.CodeSyncPayload{Code: "v3", Seq: 3}))
	v.HandleSync(mustPayload(t, wire.New(wire.KindCodeSync, "r", "bob"),
		wire.CodeSyncPayload{Code: "v2", Seq: 2})) // пришёл с опозданием

	mu.Lock()
	defer mu.Unlock()
	if len(applied) != 1 || applied[0] != "v3" || v.buffer != "v3" {
		t.Fatalf("stale snapshot slipped through: %v", applied)
	}
}

func TestViewer_SeqResetsOnNewShare(t *testing.T) {
	v := NewViewer(ViewerConfig{SelfID: "alice"})

	v.HandleSync(mustPayload(t, wire.New(wire.KindCodeSync, "r", "bob"),
		wire.CodeSyncPayload{Code: "old session", Seq: 9}))
	v.HandleShareStart(mustPayload(t, wire.New(wire.KindCodeShareStart, "r", "bob"),
		wire.ShareStartPayload{Language: "go", InitialCode: ""}))
	v.HandleSync(mustPayload(t, wire.New(wire.KindCodeSync, "r", "bob"),
		wire.CodeSyncPayload{Code: "new session", Seq: 1}))

	if v.Buffer() != "new session" {
		t.Fatalf("seq must restart with a new share: %q", v.Buffer())
	}
}

func TestViewer_DecorationExpiry(t *testing.T) {
	gone := make(chan Decoration, 4)
	v := NewViewer(ViewerConfig{
		SelfID:              "alice",
		DecorationTTL:       40 * time.Millisecond,
		OnDecorationExpired: func(d Decoration) { gone <- d },
	})

	v.HandleLineChanges(mustPayload(t, wire.New(wire.KindCodeLineChange, "r", "bob"),
		wire.CodeLineChangePayload{Changes: []wire.CodeLineChange{
			{LineNumber: 2, ChangeType: wire.ChangeModified, OldContent: "b", NewContent: "X"},
		}, Seq: 1}))

	if len(v.Decorations()) != 1 {
		t.Fatalf("decorations = %d", len(v.Decorations()))
	}

	select {
	case d := <-gone:
		if d.LineNumber != 2 {
			t.Fatalf("expired wrong line: %d", d.LineNumber)
		}
	case <-time.After(time.Second):
		t.Fatal("decoration never expired")
	}
	if len(v.Decorations()) != 0 {
		t.Fatal("expired decoration still present")
	}
}

// Новое изменение той же строки снимает старую подсветку адресно и досрочно;
// истёкший таймер старой декорации не должен убить новую.
func TestViewer_DecorationReplacedEarly(t *testing.T) {
	gone := make(chan Decoration, 4)
	v := NewViewer(ViewerConfig{
		SelfID:              "alice",
		DecorationTTL:       60 * time.Millisecond,
		OnDecorationExpired: func(d Decoration) { gone <- d },
	})

	batch := func(content string) wire.Message {
		return mustPayload(t, wire.New(wire.KindCodeLineChange, "r", "bob"),
			wire.CodeLineChangePayload{Changes: []wire.CodeLineChange{
				{LineNumber: 5, ChangeType: wire.ChangeModified, OldContent: "old", NewContent: content},
			}})
	}

	v.HandleLineChanges(batch("first"))
	time.Sleep(20 * time.Millisecond)
	v.HandleLineChanges(batch("second"))

	select {
	case d := <-gone:
		if d.NewContent != "first" {
			t.Fatalf("wrong decoration replaced: %+v", d)
		}
	case <-time.After(time.Second):
		t.Fatal("replaced decoration not reported")
	}

	// старый таймер (T+60ms от первой) не должен снять вторую раньше её TTL
	time.Sleep(50 * time.Millisecond) // ~T+70ms: первый таймер уже отработал
	if len(v.Decorations()) != 1 {
		t.Fatal("old timer removed the replacement decoration")
	}

	select {
	case d := <-gone:
		if d.NewContent != "second" {
			t.Fatalf("unexpected expiry: %+v", d)
		}
	case <-time.After(time.Second):
		t.Fatal("replacement decoration never expired")
	}
}

func TestViewer_MalformedLineSkipped(t *testing.T) {
	var decorated []Decoration
	v := NewViewer(ViewerConfig{
		SelfID:       "alice",
		OnDecoration: func(d Decoration) { decorated = append(decorated, d) },
	})

	v.HandleLineChanges(mustPayload(t, wire.New(wire.KindCodeLineChange, "r", "bob"),
		wire.CodeLineChangePayload{Changes: []wire.CodeLineChange{
			{LineNumber: 0, ChangeType: wire.ChangeModified, NewContent: "bad line number"},
			{LineNumber: 3, ChangeType: "exploded", NewContent: "bad type"},
			{LineNumber: 4, ChangeType: wire.ChangeAdded, NewContent: "ok"},
		}}))

	if len(decorated) != 1 || decorated[0].LineNumber != 4 {
		t.Fatalf("one bad entry must not block the batch: %+v", decorated)
	}
}

func TestViewer_AttachRoutesEvents(t *testing.T) {
	ev := session.NewEvents()
	v := NewViewer(ViewerConfig{SelfID: "alice"})
	off := v.Attach(ev)

	ev.EmitCode(mustPayload(t, wire.New(wire.KindCodeShareStart, "r", "bob"),
		wire.ShareStartPayload{Language: "go", InitialCode: "hello"}))
	if v.SharerID() != "bob" {
		t.Fatal("share_start not routed through events")
	}

	off()
	ev.EmitCode(wire.New(wire.KindCodeShareEnd, "r", "bob"))
	if v.SharerID() != "bob" {
		t.Fatal("detached viewer still receives events")
	}
}
