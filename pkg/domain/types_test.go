package domain

import "testing"

func TestReplyStatusTransitions(t *testing.T) {
	cases := []struct {
		from    ReplyStatus
		to      ReplyStatus
		allowed bool
	}{
		{ReplyPending, ReplyReady, true},
		{ReplyPending, ReplyPublished, false},
		{ReplyPending, ReplyPending, false},
		{ReplyReady, ReplyPublished, true},
		{ReplyReady, ReplyPending, false},
		{ReplyReady, ReplyReady, false},
		{ReplyPublished, ReplyPending, false},
		{ReplyPublished, ReplyReady, false},
		{ReplyPublished, ReplyPublished, false},
	}
	for _, c := range cases {
		if got := c.from.CanAdvanceTo(c.to); got != c.allowed {
			t.Fatalf("%s -> %s: expected %v, got %v", c.from, c.to, c.allowed, got)
		}
	}
}

func TestReplyStatusTerminal(t *testing.T) {
	if ReplyPending.Terminal() || ReplyReady.Terminal() {
		t.Fatalf("pending and ready are in flight, not terminal")
	}
	if !ReplyPublished.Terminal() {
		t.Fatalf("published is terminal")
	}
}
