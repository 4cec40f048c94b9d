package session

import "testing"

func TestRegistry_SharedPerRoom(t *testing.T) {
	r := NewRegistry(Config{URL: "ws://127.0.0.1:1/ws"})
	defer r.Close()

	a := r.Get("room-1")
	b := r.Get("room-1")
	c := r.Get("room-2")

	if a != b {
		t.Fatal("same room should share one transport")
	}
	if a == c {
		t.Fatal("different rooms must not share a transport")
	}
}

func TestRegistry_Release(t *testing.T) {
	r := NewRegistry(Config{URL: "ws://127.0.0.1:1/ws"})
	defer r.Close()

	a := r.Get("room-1")
	r.Release("room-1")
	if r.Get("room-1") == a {
		t.Fatal("released session should not be reused")
	}
}

func TestRegistry_Close(t *testing.T) {
	r := NewRegistry(Config{URL: "ws://127.0.0.1:1/ws"})
	a := r.Get("room-1")

	r.Close()
	if a.Status() != StatusDisconnected {
		t.Fatalf("status after close = %s", a.Status())
	}
	if r.Get("room-1") != nil {
		t.Fatal("closed registry must not hand out sessions")
	}
	r.Close() // повторный Close безопасен
}
