package talk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"SProject/module/talk/model"
	errs "SProject/tools/errs"
)

func mustAppend(t *testing.T, s Store, convID, sender, text string) *model.MessageModel {
	t.Helper()
	m, err := s.Append(context.Background(), &model.MessageModel{
		ConvID:   convID,
		SenderID: sender,
		Text:     text,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	return m
}

func TestAppendAssignsSeqPerConversation(t *testing.T) {
	s := NewMemStore()

	a1 := mustAppend(t, s, "cls:7a", "u1", "hello")
	a2 := mustAppend(t, s, "cls:7a", "u2", "world")
	b1 := mustAppend(t, s, "grp:g1", "u1", "other room")

	if a1.Seq != 1 || a2.Seq != 2 {
		t.Fatalf("seq in cls:7a: got %d,%d want 1,2", a1.Seq, a2.Seq)
	}
	if b1.Seq != 1 {
		t.Fatalf("seq in grp:g1: got %d want 1 (independent counter)", b1.Seq)
	}
	if a1.ID == "" || a1.ID == a2.ID {
		t.Fatalf("ids must be unique and non-empty: %q %q", a1.ID, a2.ID)
	}
	if a1.CreatedAt == 0 {
		t.Fatal("server must stamp createdAt")
	}
}

func TestAppendRejectsEmptyMessage(t *testing.T) {
	s := NewMemStore()
	_, err := s.Append(context.Background(), &model.MessageModel{ConvID: "cls:7a", SenderID: "u1"})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want validation error, got %v", err)
	}

	// 只有附件没有文本是合法的
	_, err = s.Append(context.Background(), &model.MessageModel{
		ConvID:      "cls:7a",
		SenderID:    "u1",
		Attachments: []model.Attachment{{URL: "https://files/x.pdf", Name: "x.pdf"}},
	})
	if err != nil {
		t.Fatalf("attachment-only message: %v", err)
	}
}

func TestPageNewestFirstWithCursor(t *testing.T) {
	s := NewMemStore()
	const total = 7
	for i := 1; i <= total; i++ {
		mustAppend(t, s, "cls:7a", "u1", fmt.Sprintf("msg-%d", i))
	}

	page1, next, err := s.Page(context.Background(), "cls:7a", "", 3)
	if err != nil {
		t.Fatalf("page1: %v", err)
	}
	if len(page1) != 3 || page1[0].Seq != 7 || page1[2].Seq != 5 {
		t.Fatalf("page1: want seqs 7,6,5 got %v", seqs(page1))
	}
	if next == "" {
		t.Fatal("page1: want next cursor")
	}

	page2, next2, err := s.Page(context.Background(), "cls:7a", next, 3)
	if err != nil {
		t.Fatalf("page2: %v", err)
	}
	if len(page2) != 3 || page2[0].Seq != 4 || page2[2].Seq != 2 {
		t.Fatalf("page2: want seqs 4,3,2 got %v", seqs(page2))
	}

	page3, next3, err := s.Page(context.Background(), "cls:7a", next2, 3)
	if err != nil {
		t.Fatalf("page3: %v", err)
	}
	if len(page3) != 1 || page3[0].Seq != 1 {
		t.Fatalf("page3: want seq 1 got %v", seqs(page3))
	}
	if next3 != "" {
		t.Fatalf("page3: want empty next cursor, got %q", next3)
	}
}

func TestPageSizeClamp(t *testing.T) {
	s := NewMemStore()
	for i := 0; i < DefaultMaxPageSize+10; i++ {
		mustAppend(t, s, "cls:7a", "u1", "x")
	}

	for _, pageSize := range []int{0, -5, 1000} {
		got, _, err := s.Page(context.Background(), "cls:7a", "", pageSize)
		if err != nil {
			t.Fatalf("page(%d): %v", pageSize, err)
		}
		if len(got) != DefaultMaxPageSize {
			t.Fatalf("page(%d): got %d messages, want clamp to %d", pageSize, len(got), DefaultMaxPageSize)
		}
	}
}

func TestPageEmptyConversation(t *testing.T) {
	s := NewMemStore()
	got, next, err := s.Page(context.Background(), "cls:empty", "", 10)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(got) != 0 || next != "" {
		t.Fatalf("empty conversation: got %d msgs, cursor %q", len(got), next)
	}
}

func TestSeqOfAndLatest(t *testing.T) {
	s := NewMemStore()
	m1 := mustAppend(t, s, "cls:7a", "u1", "one")
	m2 := mustAppend(t, s, "cls:7a", "u1", "two")

	n, err := s.SeqOf(context.Background(), "cls:7a", m1.ID)
	if err != nil || n != m1.Seq {
		t.Fatalf("SeqOf: got (%d, %v)", n, err)
	}
	if _, err := s.SeqOf(context.Background(), "cls:7a", "no-such-id"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("SeqOf unknown id: want not-found, got %v", err)
	}
	// 消息存在但不属于该会话 -> not found
	if _, err := s.SeqOf(context.Background(), "grp:g1", m1.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("SeqOf wrong conversation: want not-found, got %v", err)
	}

	ok, err := s.Exists(context.Background(), "cls:7a", m1.ID)
	if err != nil || !ok {
		t.Fatalf("Exists: got (%v, %v)", ok, err)
	}
	ok, err = s.Exists(context.Background(), "grp:g1", m1.ID)
	if err != nil || ok {
		t.Fatalf("Exists wrong conversation: got (%v, %v)", ok, err)
	}

	latest, err := s.Latest(context.Background(), "cls:7a")
	if err != nil || latest == nil || latest.ID != m2.ID {
		t.Fatalf("Latest: got (%+v, %v)", latest, err)
	}
	none, err := s.Latest(context.Background(), "cls:void")
	if err != nil || none != nil {
		t.Fatalf("Latest of empty conversation: got (%+v, %v)", none, err)
	}

	max, err := s.MaxSeq(context.Background(), "cls:7a")
	if err != nil || max != 2 {
		t.Fatalf("MaxSeq: got (%d, %v)", max, err)
	}
}

func TestConcurrentAppendKeepsSeqOrder(t *testing.T) {
	s := NewMemStore()
	const writers, perWriter = 8, 50
	const total = writers * perWriter

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := s.Append(context.Background(), &model.MessageModel{
					ConvID:   "cls:7a",
					SenderID: fmt.Sprintf("u%d", w),
					Text:     "x",
				}); err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	// 全量翻页：newest-first、seq 严格递减、条数不多不少
	var got []int64
	cursor := ""
	for {
		page, next, err := s.Page(context.Background(), "cls:7a", cursor, 50)
		if err != nil {
			t.Fatalf("page: %v", err)
		}
		got = append(got, seqs(page)...)
		if next == "" {
			break
		}
		cursor = next
	}
	if len(got) != total {
		t.Fatalf("paged %d messages, want %d", len(got), total)
	}
	for i := 0; i < len(got); i++ {
		if want := int64(total - i); got[i] != want {
			t.Fatalf("seq at %d: got %d, want %d", i, got[i], want)
		}
	}
}

func seqs(ms []*model.MessageModel) []int64 {
	out := make([]int64, len(ms))
	for i, m := range ms {
		out[i] = m.Seq
	}
	return out
}
