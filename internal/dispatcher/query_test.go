package dispatcher

import "testing"

func TestQueryEqualityIgnoresReplyChannelIdentity(t *testing.T) {
	a := NewQuery[int]("status")
	b := NewQuery[int]("status")

	if a.Reply == b.Reply {
		t.Fatal("expected distinct reply channels for independently constructed queries")
	}
	if !a.Equal(b) {
		t.Fatal("expected queries with the same name to compare equal regardless of channel identity")
	}
}

func TestQueryEqualityDistinguishesNames(t *testing.T) {
	a := NewQuery[int]("status")
	b := NewQuery[int]("queue-full")

	if a.Equal(b) {
		t.Fatal("expected queries with different names to compare unequal")
	}
}
