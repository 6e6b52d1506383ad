package service

import (
	"context"
	"testing"
)

func TestConnectPublishesPresence(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()
	conn := h.connect(t, "alice")

	p, err := h.sessions.LookupPresence(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.ConnectionID != conn || p.Username != "alice-name" {
		t.Fatalf("presence = %+v", p)
	}
	if s := h.sessions.Session(conn); s == nil || s.UserID != "alice" {
		t.Fatalf("session = %+v", s)
	}

	missing, err := h.sessions.LookupPresence(ctx, "bob")
	if err != nil || missing != nil {
		t.Fatalf("offline lookup = %+v, %v", missing, err)
	}
}

func TestDisconnectRemovesPresenceAndQueueEntry(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()
	conn := h.connect(t, "alice")
	h.requestMatch(t, "alice")

	s, current := h.sessions.Disconnect(ctx, conn)
	if s == nil || !current {
		t.Fatalf("Disconnect = %+v, %v", s, current)
	}
	if p, _ := h.sessions.LookupPresence(ctx, "alice"); p != nil {
		t.Fatalf("presence survived disconnect: %+v", p)
	}
	if waiting, _ := h.matchmaker.Waiting(ctx, "alice"); waiting {
		t.Fatal("queue entry survived disconnect")
	}
	if h.sessions.Session(conn) != nil {
		t.Fatal("session record survived disconnect")
	}

	// second disconnect of the same connection is a no-op
	if s, current := h.sessions.Disconnect(ctx, conn); s != nil || current {
		t.Fatalf("second Disconnect = %+v, %v", s, current)
	}
}

func TestStaleDisconnectKeepsNewConnection(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()

	if _, err := h.sessions.Connect(ctx, "old", "alice", "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.sessions.Connect(ctx, "new", "alice", "alice"); err != nil {
		t.Fatal(err)
	}
	h.requestMatch(t, "alice")

	if _, current := h.sessions.Disconnect(ctx, "old"); current {
		t.Fatal("old connection reported as current")
	}
	p, _ := h.sessions.LookupPresence(ctx, "alice")
	if p == nil || p.ConnectionID != "new" {
		t.Fatalf("presence = %+v, want new connection", p)
	}
	if waiting, _ := h.matchmaker.Waiting(ctx, "alice"); !waiting {
		t.Fatal("stale disconnect removed the queue entry of the live connection")
	}
}

func TestDeregisterPresenceIsIdempotent(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()
	h.connect(t, "alice")
	h.requestMatch(t, "alice")

	for i := 0; i < 2; i++ {
		if err := h.sessions.DeregisterPresence(ctx, "alice"); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if p, _ := h.sessions.LookupPresence(ctx, "alice"); p != nil {
			t.Fatalf("call %d: presence = %+v", i, p)
		}
		if waiting, _ := h.matchmaker.Waiting(ctx, "alice"); waiting {
			t.Fatalf("call %d: still queued", i)
		}
	}
	if err := h.sessions.DeregisterPresence(ctx, "never-connected"); err != nil {
		t.Fatalf("absent user: %v", err)
	}
}

func TestRegisterPresenceLastWriteWins(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()
	_ = h.sessions.RegisterPresence(ctx, "alice", "c1", "alice")
	_ = h.sessions.RegisterPresence(ctx, "alice", "c2", "alice")

	p, err := h.sessions.LookupPresence(ctx, "alice")
	if err != nil || p.ConnectionID != "c2" {
		t.Fatalf("presence = %+v, %v; want c2", p, err)
	}
}
