package directory

import (
	"context"
	"sync"

	errs "SProject/tools/errs"
)

// MemResolver 内存目录：单测与本地联调用（与 Mongo 实现语义一致）。
type MemResolver struct {
	mu      sync.RWMutex
	classes map[string][]string // class_id -> roster
	groups  map[string][]string // group_id -> members
	users   map[string]struct{}
}

func NewMemResolver() *MemResolver {
	return &MemResolver{
		classes: make(map[string][]string),
		groups:  make(map[string][]string),
		users:   make(map[string]struct{}),
	}
}

func (r *MemResolver) PutClass(classID string, roster ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[classID] = roster
	for _, u := range roster {
		r.users[u] = struct{}{}
	}
}

func (r *MemResolver) PutGroup(groupID string, members ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[groupID] = members
	for _, u := range members {
		r.users[u] = struct{}{}
	}
}

func (r *MemResolver) PutUser(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[userID] = struct{}{}
}

func (r *MemResolver) Resolve(_ context.Context, key Key, p Principal) (*Resolution, error) {
	if err := key.Valid(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var audience []string
	switch key.Kind {
	case KindClass:
		roster, ok := r.classes[key.ID]
		if !ok {
			return nil, errs.ErrNotFound.WrapMsg("class not found", "class_id", key.ID)
		}
		audience = roster
	case KindGroup:
		members, ok := r.groups[key.ID]
		if !ok {
			return nil, errs.ErrNotFound.WrapMsg("group not found", "group_id", key.ID)
		}
		audience = members
	case KindUser:
		if _, ok := r.users[key.ID]; !ok {
			return nil, errs.ErrNotFound.WrapMsg("user not found", "user_id", key.ID)
		}
		audience = []string{p.UserID, key.ID}
	}

	res := &Resolution{ConvID: ConvID(key, p), Audience: audience}
	if !res.Member(p.UserID) {
		return nil, errs.ErrForbidden.WrapMsg("not a member", "user", p.UserID, "conv", res.ConvID)
	}
	return res, nil
}
