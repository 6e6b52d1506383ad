package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chatio/internal/cache"
	"chatio/internal/domain"
	"chatio/internal/repository"
)

func TestRequestMatchWaitsThenPairs(t *testing.T) {
	for name, newH := range map[string]func(*testing.T) *harness{
		"memory": newMemoryHarness,
		"redis":  newRedisHarness,
	} {
		t.Run(name, func(t *testing.T) {
			h := newH(t)
			h.connect(t, "alice")
			h.connect(t, "bob")

			first := h.requestMatch(t, "alice")
			if first.Status != domain.MatchStatusWaiting {
				t.Fatalf("alice status = %s, want waiting", first.Status)
			}

			second := h.requestMatch(t, "bob")
			if !isMatched(second) {
				t.Fatalf("bob status = %s, want matched", second.Status)
			}
			users := participantUsers(second)
			if len(second.Participants) != 2 || !users["alice"] || !users["bob"] {
				t.Fatalf("participants = %+v", second.Participants)
			}
			if second.Participants[0].UserID != "bob" {
				t.Errorf("requester should be listed first, got %s", second.Participants[0].UserID)
			}
			if second.Conversation == nil || second.Conversation.ConversationType == nil ||
				second.Conversation.ConversationType.Name != domain.ConversationTypeStranger {
				t.Fatalf("conversation = %+v", second.Conversation)
			}
			if q := h.waiting(t); len(q) != 0 {
				t.Fatalf("queue after match = %v, want empty", q)
			}
		})
	}
}

func TestRequestMatchNeverPairsWithSelf(t *testing.T) {
	h := newMemoryHarness(t)
	h.connect(t, "alice")

	for i := 0; i < 3; i++ {
		res := h.requestMatch(t, "alice")
		if res.Status != domain.MatchStatusWaiting {
			t.Fatalf("attempt %d: status = %s, want waiting", i, res.Status)
		}
	}
	if q := h.waiting(t); fmt.Sprint(q) != "[alice]" {
		t.Fatalf("queue = %v, want [alice]", q)
	}
}

func TestRequestMatchIsFIFO(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()
	for _, u := range []string{"a", "b", "c", "d"} {
		h.connect(t, u)
	}
	for _, u := range []string{"a", "b", "c"} {
		if _, err := h.matchmaker.queue.Enqueue(ctx, u); err != nil {
			t.Fatal(err)
		}
	}

	res := h.requestMatch(t, "d")
	if !isMatched(res) || !participantUsers(res)["a"] {
		t.Fatalf("d matched with %+v, want a", res.Participants)
	}
	if q := h.waiting(t); fmt.Sprint(q) != "[b c]" {
		t.Fatalf("queue = %v, want [b c]", q)
	}
}

func TestRequestMatchLeavesActiveConversationFirst(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()
	h.connect(t, "alice")
	h.connect(t, "bob")

	h.requestMatch(t, "alice")
	matched := h.requestMatch(t, "bob")
	convID := matched.Conversation.ID

	again := h.requestMatch(t, "alice")
	if again.Status != domain.MatchStatusWaiting {
		t.Fatalf("status = %s, want waiting", again.Status)
	}
	if again.Left == nil || again.Left.ConversationID != convID {
		t.Fatalf("left = %+v, want conversation %s", again.Left, convID)
	}
	if len(again.Left.Updated) != 1 || again.Left.Updated[0].UserID != "alice" || again.Left.Updated[0].LeftAt == nil {
		t.Fatalf("updated = %+v, want only alice stamped", again.Left.Updated)
	}
	if len(again.Left.Remaining) != 1 || again.Left.Remaining[0].UserID != "bob" {
		t.Fatalf("remaining = %+v, want bob", again.Left.Remaining)
	}

	// bob stays in the one-sided conversation until he asks again
	busy, err := h.conversations.HasActiveStranger(ctx, "bob")
	if err != nil || !busy {
		t.Fatalf("bob active = %v, %v", busy, err)
	}
	h.assertQueueInvariant(t)

	res := h.requestMatch(t, "bob")
	if !isMatched(res) || !participantUsers(res)["alice"] {
		t.Fatalf("bob re-request = %+v", res)
	}
	h.assertQueueInvariant(t)
}

func TestRequestMatchSkipsDisconnectedWaiter(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()
	conn := h.connect(t, "alice")
	h.connect(t, "bob")

	h.requestMatch(t, "alice")
	if _, current := h.sessions.Disconnect(ctx, conn); !current {
		t.Fatal("disconnect of current connection reported stale")
	}

	res := h.requestMatch(t, "bob")
	if res.Status != domain.MatchStatusWaiting {
		t.Fatalf("bob matched with disconnected alice: %+v", res.Participants)
	}
	if q := h.waiting(t); fmt.Sprint(q) != "[bob]" {
		t.Fatalf("queue = %v, want [bob]", q)
	}
}

func TestRequestMatchDropsStaleEntries(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()
	h.connect(t, "busy")
	h.connect(t, "other")
	h.connect(t, "carol")
	h.connect(t, "dave")

	// "ghost" is queued without presence, "busy" is queued while already matched
	if _, err := h.conversations.CreateStrangerConversation(ctx, "busy", "other"); err != nil {
		t.Fatal(err)
	}
	for _, u := range []string{"ghost", "busy", "carol"} {
		if _, err := h.matchmaker.queue.Enqueue(ctx, u); err != nil {
			t.Fatal(err)
		}
	}

	// two stale entries exhaust the retry budget
	res := h.requestMatch(t, "dave")
	if res.Status != domain.MatchStatusWaiting {
		t.Fatalf("dave = %+v, want waiting after two conflicts", res)
	}
	if q := h.waiting(t); fmt.Sprint(q) != "[carol dave]" {
		t.Fatalf("queue = %v, want [carol dave]", q)
	}

	h.connect(t, "erin")
	res = h.requestMatch(t, "erin")
	if !isMatched(res) || !participantUsers(res)["carol"] {
		t.Fatalf("erin = %+v, want matched with carol", res)
	}
}

func TestRequestMatchLockTimeoutIsConflict(t *testing.T) {
	store := cache.NewMemoryStore()
	cfg := testChatConfig()
	cfg.MatchLockWait = 50 * time.Millisecond
	h := newHarness(t, store, cfg)
	ctx := context.Background()
	h.connect(t, "alice")

	if ok, _ := store.Lock(ctx, lockKey("alice"), "someone-else", time.Minute); !ok {
		t.Fatal("could not take lock")
	}
	_, err := h.matchmaker.RequestMatch(ctx, "alice")
	if !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("err = %v, want ErrConcurrencyConflict", err)
	}
	if KindOf(err) != KindConcurrencyConflict {
		t.Fatalf("kind = %s", KindOf(err))
	}
}

func TestRequestMatchConcurrent(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()

	const n = 20
	users := make([]string, n)
	for i := range users {
		users[i] = fmt.Sprintf("user-%02d", i)
		h.connect(t, users[i])
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			if _, err := h.matchmaker.RequestMatch(ctx, u); err != nil {
				errs <- fmt.Errorf("%s: %w", u, err)
			}
		}(u)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	conversations := map[string][]string{}
	for _, u := range users {
		ps, err := h.repo.FindParticipants(ctx, repository.ParticipantFilter{
			UserID:           u,
			ConversationType: domain.ConversationTypeStranger,
			ActiveOnly:       true,
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(ps) > 1 {
			t.Errorf("%s is in %d active stranger conversations", u, len(ps))
		}
		for _, p := range ps {
			conversations[p.ConversationID] = append(conversations[p.ConversationID], u)
		}
	}
	for id, members := range conversations {
		if len(members) != 2 || members[0] == members[1] {
			t.Errorf("conversation %s has members %v", id, members)
		}
	}

	queued := h.waiting(t)
	if got := 2*len(conversations) + len(queued); got != n {
		t.Errorf("matched %d + queued %d does not account for %d users", 2*len(conversations), len(queued), n)
	}
	h.assertQueueInvariant(t)
}

func TestSkipOrLeave(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()
	active, err := h.conversations.CreateStrangerConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	convID := active.Conversation.ID

	res, err := h.matchmaker.SkipOrLeave(ctx, convID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Updated) != 1 || res.Updated[0].UserID != "alice" {
		t.Fatalf("updated = %+v", res.Updated)
	}
	if len(res.Remaining) != 1 || res.Remaining[0].UserID != "bob" {
		t.Fatalf("remaining = %+v", res.Remaining)
	}

	res, err = h.matchmaker.SkipOrLeave(ctx, convID, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Updated) != 1 || res.Updated[0].UserID != "bob" || len(res.Remaining) != 0 {
		t.Fatalf("teardown = %+v", res)
	}

	res, err = h.matchmaker.SkipOrLeave(ctx, convID, "")
	if err != nil || len(res.Updated) != 0 {
		t.Fatalf("repeat teardown = %+v, %v", res, err)
	}
}

func TestLeaveActiveWithoutConversation(t *testing.T) {
	h := newMemoryHarness(t)
	res, err := h.matchmaker.LeaveActive(context.Background(), "nobody")
	if err != nil || res != nil {
		t.Fatalf("LeaveActive = %+v, %v; want nil, nil", res, err)
	}
}
