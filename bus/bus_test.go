package bus

import (
	"sort"
	"testing"
	"time"
)

var (
	topicState = T("projectlab", "state")
	topicUp    = T("projectlab", "button", "up")
)

func TestBasicPubSub(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")

	sub := conn.Subscribe(topicUp)
	conn.Publish(conn.NewMessage(topicUp, "pressed", false))

	expectOneOf(t, sub, "pressed")
}

func TestRetainedMessage(t *testing.T) {
	b := NewBus(2)
	conn := b.NewConnection("test")

	conn.Publish(conn.NewMessage(topicState, "v3.15", true))
	sub := conn.Subscribe(topicState)

	expectOneOf(t, sub, "v3.15")
}

func TestRetainedReplaced(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("test")

	c.Publish(b.NewMessage(topicState, "v3.x", true))
	c.Publish(b.NewMessage(topicState, "v3.15", true))

	s := c.Subscribe(topicState)
	expectOneOf(t, s, "v3.15")
	expectNoMessage(t, s)
}

func TestNonRetainedIsNotReplayed(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("test")

	c.Publish(b.NewMessage(topicUp, "clicked", false))
	s := c.Subscribe(topicUp)
	expectNoMessage(t, s)
}

func TestFullQueueDropsOldest(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("test")
	s := c.Subscribe(topicUp)

	for _, p := range []string{"a", "b", "c"} {
		c.Publish(b.NewMessage(topicUp, p, false))
	}
	got := drainPayloads(t, s, 2)
	if got[0] != "b" || got[1] != "c" {
		t.Fatalf("got %v", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("test")
	s := c.Subscribe(topicUp)

	s.Unsubscribe()
	s.Unsubscribe() // second call is a no-op

	if _, ok := <-s.Channel(); ok {
		t.Fatal("channel should be closed")
	}
	c.Publish(b.NewMessage(topicUp, "late", false))
	if len(b.root.children) != 0 {
		t.Fatal("empty trie nodes should be pruned")
	}
}

func TestDisconnect(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("test")
	s1 := c.Subscribe(topicUp)
	s2 := c.Subscribe(T("projectlab", "#"))

	c.Disconnect()
	for _, s := range []*Subscription{s1, s2} {
		if _, ok := <-s.Channel(); ok {
			t.Fatal("channel should be closed")
		}
	}
}

func TestTopicStringAndParse(t *testing.T) {
	tp := ParseTopic("/projectlab/button/up/")
	if !topicsEqual(tp, topicUp) {
		t.Fatalf("parsed %v", tp)
	}
	if s := T("a", 1, "b").String(); s != "a/1/b" {
		t.Fatalf("String()=%q", s)
	}
	if got := T("projectlab", "button").Append("down"); got.String() != "projectlab/button/down" {
		t.Fatalf("Append=%q", got.String())
	}
}

// ---------------- Wildcards ----------------

func TestWildOneMatchesEveryButton(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	buttons := c.Subscribe(T("projectlab", "button", WildOne))
	onlyUp := c.Subscribe(topicUp)

	c.Publish(b.NewMessage(T("projectlab", "button", "left"), "pressed", false))
	expectOneOf(t, buttons, "pressed")
	expectNoMessage(t, onlyUp)

	c.Publish(b.NewMessage(topicUp, "clicked", false))
	expectOneOf(t, buttons, "clicked")
	expectOneOf(t, onlyUp, "clicked")

	// one level only
	c.Publish(b.NewMessage(T("projectlab", "button", "up", "value"), "deep", false))
	c.Publish(b.NewMessage(T("projectlab", "button"), "shallow", false))
	expectNoMessage(t, buttons)
}

func TestWildAllMatchesSubtree(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	all := c.Subscribe(T("projectlab", WildAll))
	everything := c.Subscribe(T(WildAll))
	buttons := c.Subscribe(T("projectlab", "button", WildAll))

	c.Publish(b.NewMessage(T("projectlab"), "root", false))
	expectOneOf(t, all, "root")
	expectOneOf(t, everything, "root")
	expectNoMessage(t, buttons)

	c.Publish(b.NewMessage(topicUp, "released", false))
	expectOneOf(t, all, "released")
	expectOneOf(t, everything, "released")
	expectOneOf(t, buttons, "released")

	c.Publish(b.NewMessage(T("other", "state"), "x", false))
	expectOneOf(t, everything, "x")
	expectNoMessage(t, all)
}

func TestWildcardReplaysRetained(t *testing.T) {
	b := NewBus(32)
	c := b.NewConnection("test")

	c.Publish(b.NewMessage(topicState, "v3.15", true))
	c.Publish(b.NewMessage(T("projectlab", "button", "up", "value"), "up:released", true))
	c.Publish(b.NewMessage(T("projectlab", "button", "down", "value"), "down:pressed", true))

	got := drainPayloads(t, c.Subscribe(T("projectlab", WildAll)), 3)
	assertUnorderedEqual(t, got, []string{"v3.15", "up:released", "down:pressed"})

	got = drainPayloads(t, c.Subscribe(T("projectlab", "button", WildOne, "value")), 2)
	assertUnorderedEqual(t, got, []string{"up:released", "down:pressed"})
}

func TestRetainedClearedByNilPayload(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	c.Publish(b.NewMessage(topicState, "v3.x", true))
	c.Publish(b.NewMessage(T("projectlab", "button", "up", "value"), "released", true))
	c.Publish(b.NewMessage(topicState, nil, true))

	got := drainPayloads(t, c.Subscribe(T("projectlab", WildAll)), 1)
	if got[0] != "released" {
		t.Fatalf("expected only the button value after clearing state, got %v", got)
	}
}

// ---------------- helpers ----------------

func topicsEqual(a, b Topic) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func expectOneOf(t *testing.T, sub *Subscription, want string) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		s, ok := got.Payload.(string)
		if !ok || s != want {
			t.Fatalf("unexpected payload: %v (want %q)", got.Payload, want)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for %q", want)
	}
}

func expectNoMessage(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		t.Fatalf("unexpected message: %#v", got)
	case <-time.After(60 * time.Millisecond):
	}
}

func drainPayloads(t *testing.T, sub *Subscription, n int) []string {
	t.Helper()
	var out []string
	deadline := time.Now().Add(300 * time.Millisecond)
	for len(out) < n && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if s, ok := m.Payload.(string); ok {
				out = append(out, s)
			} else {
				t.Fatalf("non-string payload in drain: %#v", m.Payload)
			}
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(out) != n {
		t.Fatalf("drainPayloads: expected %d messages, got %d (%v)", n, len(out), out)
	}
	return out
}

func assertUnorderedEqual(t *testing.T, got, want []string) {
	t.Helper()
	sort.Strings(got)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d (%v vs %v)", len(got), len(want), got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("mismatch at %d: got %q, want %q (got=%v want=%v)", i, got[i], want[i], got, want)
		}
	}
}

func TestTopic_InvalidTokenPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for non-comparable token, got none")
		}
	}()

	// []byte is not comparable, so T should panic
	_ = T([]byte{1, 2, 3})
}
