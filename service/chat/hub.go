package chat

import (
	"sync"
)

// Hub 会话 -> 订阅连接 的倒排索引。
// 外层锁只护 convs map；每个会话自带读写锁，扇出走读锁互不阻塞。
type Hub struct {
	mu    sync.RWMutex
	convs map[string]*convSubs
}

type convSubs struct {
	mu    sync.RWMutex
	conns map[string]*WsConn // connID -> conn
	dead  bool               // 桶已被摘除，写入方必须换新桶重试
}

func NewHub() *Hub {
	return &Hub{convs: make(map[string]*convSubs)}
}

func (h *Hub) bucket(convID string, create bool) *convSubs {
	h.mu.RLock()
	cs := h.convs[convID]
	h.mu.RUnlock()
	if cs != nil || !create {
		return cs
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if cs = h.convs[convID]; cs == nil {
		cs = &convSubs{conns: make(map[string]*WsConn)}
		h.convs[convID] = cs
	}
	return cs
}

// Subscribe 幂等；重复订阅覆盖同一槽位。
// 拿到的桶可能刚被并发的空桶回收标记为 dead，换新桶重试。
func (h *Hub) Subscribe(convID string, w *WsConn) {
	for {
		cs := h.bucket(convID, true)
		cs.mu.Lock()
		if cs.dead {
			cs.mu.Unlock()
			continue
		}
		cs.conns[w.ConnID] = w
		cs.mu.Unlock()
		return
	}
}

func (h *Hub) Unsubscribe(convID, connID string) {
	cs := h.bucket(convID, false)
	if cs == nil {
		return
	}
	cs.mu.Lock()
	delete(cs.conns, connID)
	empty := len(cs.conns) == 0
	cs.mu.Unlock()

	if empty {
		// 锁序固定 h.mu -> cs.mu；持 cs.mu 复核空才标记 dead，
		// 赶在标记前插入的订阅者会把桶救活
		h.mu.Lock()
		if cur := h.convs[convID]; cur == cs {
			cs.mu.Lock()
			if len(cs.conns) == 0 {
				cs.dead = true
				delete(h.convs, convID)
			}
			cs.mu.Unlock()
		}
		h.mu.Unlock()
	}
}

// Subscribers 当前订阅快照；excludeConnID 非空时跳过（不自推送）。
func (h *Hub) Subscribers(convID, excludeConnID string) []*WsConn {
	cs := h.bucket(convID, false)
	if cs == nil {
		return nil
	}
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]*WsConn, 0, len(cs.conns))
	for id, w := range cs.conns {
		if excludeConnID != "" && id == excludeConnID {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Subscribed 某连接是否订阅了该会话。
func (h *Hub) Subscribed(convID, connID string) bool {
	cs := h.bucket(convID, false)
	if cs == nil {
		return false
	}
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	_, ok := cs.conns[connID]
	return ok
}
