package talk

import (
	"context"
	"sort"
	"sync"
	"time"

	"SProject/module/talk/model"
	"SProject/module/talk/seq"
	errs "SProject/tools/errs"
	ids "SProject/tools/ids"
)

// MemStore 内存实现：单测与无 Mongo 的本地联调。
// 语义与 MongoStore 对齐（同一套接口测试跑两边）。
type MemStore struct {
	mu      sync.RWMutex
	byConv  map[string][]*model.MessageModel          // conv -> seq 升序
	byID    map[string]map[string]*model.MessageModel // conv -> id -> msg
	markers map[string]*model.ReadMarkerModel         // user|conv

	alloc       seq.Allocator
	MaxPageSize int
}

func NewMemStore() *MemStore {
	return &MemStore{
		byConv:      make(map[string][]*model.MessageModel),
		byID:        make(map[string]map[string]*model.MessageModel),
		markers:     make(map[string]*model.ReadMarkerModel),
		alloc:       seq.NewMemAllocator(),
		MaxPageSize: DefaultMaxPageSize,
	}
}

func markerKey(userID, convID string) string { return userID + "|" + convID }

func (s *MemStore) clamp(pageSize int) int {
	max := s.MaxPageSize
	if max <= 0 {
		max = DefaultMaxPageSize
	}
	if pageSize <= 0 || pageSize > max {
		return max
	}
	return pageSize
}

func (s *MemStore) Append(ctx context.Context, m *model.MessageModel) (*model.MessageModel, error) {
	if m.Empty() {
		return nil, errs.ErrValidation.WrapMsg("empty message: need text or attachments")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// 发号必须在锁内：byConv 按 seq 升序追加，Page 的二分依赖这个不变式。
	// 锁外发号会让两条并发 Append 以相反顺序拿号入列。
	n, err := s.alloc.Next(ctx, m.ConvID)
	if err != nil {
		return nil, err
	}

	cp := *m
	cp.ID = ids.GenerateString()
	cp.Seq = n
	cp.CreatedAt = time.Now().UnixMilli()

	s.byConv[cp.ConvID] = append(s.byConv[cp.ConvID], &cp)
	if s.byID[cp.ConvID] == nil {
		s.byID[cp.ConvID] = make(map[string]*model.MessageModel)
	}
	s.byID[cp.ConvID][cp.ID] = &cp

	out := cp
	return &out, nil
}

func (s *MemStore) Page(_ context.Context, convID, cursor string, pageSize int) ([]*model.MessageModel, string, error) {
	before, err := DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	limit := s.clamp(pageSize)

	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.byConv[convID]
	// seq 升序追加写入，newest-first 只需要从尾部往前扫
	idx := len(list)
	if before > 0 {
		idx = sort.Search(len(list), func(i int) bool { return list[i].Seq >= before })
	}

	var out []*model.MessageModel
	for i := idx - 1; i >= 0 && len(out) < limit; i-- {
		cp := *list[i]
		out = append(out, &cp)
	}

	next := ""
	if len(out) == limit && idx-limit > 0 {
		next = EncodeCursor(out[limit-1].Seq)
	}
	return out, next, nil
}

func (s *MemStore) Exists(_ context.Context, convID, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[convID][messageID]
	return ok, nil
}

func (s *MemStore) SeqOf(_ context.Context, convID, messageID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[convID][messageID]
	if !ok {
		return 0, errs.ErrNotFound.WrapMsg("message not found", "id", messageID)
	}
	return m.Seq, nil
}

func (s *MemStore) Latest(_ context.Context, convID string) (*model.MessageModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.byConv[convID]
	if len(list) == 0 {
		return nil, nil
	}
	cp := *list[len(list)-1]
	return &cp, nil
}

func (s *MemStore) MaxSeq(_ context.Context, convID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.byConv[convID]
	if len(list) == 0 {
		return 0, nil
	}
	return list[len(list)-1].Seq, nil
}

func (s *MemStore) UpsertMarker(_ context.Context, userID, convID, messageID string, seqNo int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := markerKey(userID, convID)
	cur, ok := s.markers[k]
	if ok && cur.LastSeq >= seqNo {
		return false, nil // 单调：旧值 no-op
	}
	s.markers[k] = &model.ReadMarkerModel{
		UserID:     userID,
		ConvID:     convID,
		LastReadID: messageID,
		LastSeq:    seqNo,
		UpdateTime: time.Now().UnixMilli(),
	}
	return true, nil
}

func (s *MemStore) GetMarker(_ context.Context, userID, convID string) (*model.ReadMarkerModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.markers[markerKey(userID, convID)]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}
