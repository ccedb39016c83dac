package talk

import (
	"context"
	"errors"
	"testing"

	errs "SProject/tools/errs"
)

func newTrackerForTest(t *testing.T) (*Tracker, *MemStore) {
	t.Helper()
	s := NewMemStore()
	return NewTracker(s, s), s
}

func TestMarkReadAdvancesMarker(t *testing.T) {
	tr, s := newTrackerForTest(t)
	m1 := mustAppend(t, s, "cls:7a", "u1", "one")
	m2 := mustAppend(t, s, "cls:7a", "u1", "two")

	if err := tr.MarkRead(context.Background(), "reader", "cls:7a", m1.ID); err != nil {
		t.Fatalf("mark m1: %v", err)
	}
	n, err := tr.Unread(context.Background(), "reader", "cls:7a")
	if err != nil || n != 1 {
		t.Fatalf("unread after m1: got (%d, %v) want 1", n, err)
	}

	if err := tr.MarkRead(context.Background(), "reader", "cls:7a", m2.ID); err != nil {
		t.Fatalf("mark m2: %v", err)
	}
	n, _ = tr.Unread(context.Background(), "reader", "cls:7a")
	if n != 0 {
		t.Fatalf("unread after m2: got %d want 0", n)
	}
}

func TestMarkReadStaleIsNoop(t *testing.T) {
	tr, s := newTrackerForTest(t)
	m1 := mustAppend(t, s, "cls:7a", "u1", "one")
	m2 := mustAppend(t, s, "cls:7a", "u1", "two")

	if err := tr.MarkRead(context.Background(), "reader", "cls:7a", m2.ID); err != nil {
		t.Fatalf("mark m2: %v", err)
	}
	// 滞后视图重放旧回执：不报错、不回退
	if err := tr.MarkRead(context.Background(), "reader", "cls:7a", m1.ID); err != nil {
		t.Fatalf("stale mark must be silent: %v", err)
	}
	marker, err := s.GetMarker(context.Background(), "reader", "cls:7a")
	if err != nil || marker == nil {
		t.Fatalf("get marker: (%+v, %v)", marker, err)
	}
	if marker.LastReadID != m2.ID || marker.LastSeq != m2.Seq {
		t.Fatalf("marker regressed: %+v", marker)
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	tr, s := newTrackerForTest(t)
	m1 := mustAppend(t, s, "cls:7a", "u1", "one")

	for i := 0; i < 3; i++ {
		if err := tr.MarkRead(context.Background(), "reader", "cls:7a", m1.ID); err != nil {
			t.Fatalf("mark #%d: %v", i, err)
		}
	}
	n, err := tr.Unread(context.Background(), "reader", "cls:7a")
	if err != nil || n != 0 {
		t.Fatalf("unread: got (%d, %v) want 0", n, err)
	}
}

func TestMarkReadDefaultsToLatest(t *testing.T) {
	tr, s := newTrackerForTest(t)
	mustAppend(t, s, "cls:7a", "u1", "one")
	m2 := mustAppend(t, s, "cls:7a", "u1", "two")

	if err := tr.MarkRead(context.Background(), "reader", "cls:7a", ""); err != nil {
		t.Fatalf("mark latest: %v", err)
	}
	marker, _ := s.GetMarker(context.Background(), "reader", "cls:7a")
	if marker == nil || marker.LastReadID != m2.ID {
		t.Fatalf("want marker on latest %q, got %+v", m2.ID, marker)
	}
}

func TestMarkReadEmptyConversation(t *testing.T) {
	tr, s := newTrackerForTest(t)

	if err := tr.MarkRead(context.Background(), "reader", "cls:void", ""); err != nil {
		t.Fatalf("empty conversation must be a no-op: %v", err)
	}
	marker, _ := s.GetMarker(context.Background(), "reader", "cls:void")
	if marker != nil {
		t.Fatalf("no marker expected, got %+v", marker)
	}
}

func TestMarkReadUnknownMessage(t *testing.T) {
	tr, s := newTrackerForTest(t)
	mustAppend(t, s, "cls:7a", "u1", "one")

	err := tr.MarkRead(context.Background(), "reader", "cls:7a", "no-such-id")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want not-found, got %v", err)
	}
}

func TestUnreadWithoutMarker(t *testing.T) {
	tr, s := newTrackerForTest(t)
	mustAppend(t, s, "cls:7a", "u1", "one")
	mustAppend(t, s, "cls:7a", "u1", "two")

	n, err := tr.Unread(context.Background(), "fresh-user", "cls:7a")
	if err != nil || n != 2 {
		t.Fatalf("unread without marker: got (%d, %v) want 2", n, err)
	}
}

// 回执是 per-user 的：一个人读了不影响别人
func TestMarkersIndependentPerUser(t *testing.T) {
	tr, s := newTrackerForTest(t)
	m1 := mustAppend(t, s, "cls:7a", "u1", "one")

	if err := tr.MarkRead(context.Background(), "alice", "cls:7a", m1.ID); err != nil {
		t.Fatalf("mark: %v", err)
	}
	na, _ := tr.Unread(context.Background(), "alice", "cls:7a")
	nb, _ := tr.Unread(context.Background(), "bob", "cls:7a")
	if na != 0 || nb != 1 {
		t.Fatalf("unread: alice=%d bob=%d, want 0/1", na, nb)
	}
}
