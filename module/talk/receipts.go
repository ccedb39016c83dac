package talk

import (
	"context"

	errs "SProject/tools/errs"
)

// Tracker 已读回执：每 (user, conversation) 一个游标，只进不退。
// 不参与投递正确性，只回答「还有多少未读」。
type Tracker struct {
	Msgs    Store
	Markers MarkerStore
}

func NewTracker(msgs Store, markers MarkerStore) *Tracker {
	return &Tracker{Msgs: msgs, Markers: markers}
}

// MarkRead 把游标推进到 messageID。
// messageID 为空 -> 取会话最新一条（空会话则无事可做）。
// messageID 不在该会话 -> ErrNotFound。
// 比当前游标旧 -> 静默 no-op（调用方视图可能滞后，不算错误）。
func (t *Tracker) MarkRead(ctx context.Context, userID, convID, messageID string) error {
	if messageID == "" {
		latest, err := t.Msgs.Latest(ctx, convID)
		if err != nil {
			return err
		}
		if latest == nil {
			return nil
		}
		messageID = latest.ID
	}

	seqNo, err := t.Msgs.SeqOf(ctx, convID, messageID)
	if err != nil {
		return err
	}
	_, err = t.Markers.UpsertMarker(ctx, userID, convID, messageID, seqNo)
	return err
}

// Unread 未读条数 = 会话水位 - 已读游标。
func (t *Tracker) Unread(ctx context.Context, userID, convID string) (int64, error) {
	max, err := t.Msgs.MaxSeq(ctx, convID)
	if err != nil {
		return 0, err
	}
	marker, err := t.Markers.GetMarker(ctx, userID, convID)
	if err != nil {
		return 0, err
	}
	var last int64
	if marker != nil {
		last = marker.LastSeq
	}
	n := max - last
	if n < 0 {
		// 游标不应超过水位；容错处理
		return 0, errs.New("marker ahead of waterline", "conv", convID, "last", last, "max", max)
	}
	return n, nil
}
