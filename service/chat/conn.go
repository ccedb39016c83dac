package chat

import (
	"net"
	"sync"
	"time"

	errs "SProject/tools/errs"
	ids "SProject/tools/ids"

	"github.com/gorilla/websocket"
)

// ===== 配置 =====

type ManagerConf struct {
	UnauthTTL  time.Duration    // 认证宽限期（默认 10s；到期未认证强制断开）
	AuthTTL    time.Duration    // 已认证连接的 TTL（pong 续期，默认 2h）
	SweepEvery time.Duration    // 清理周期（默认 1s）
	SendQueue  int              // 每连接发送队列长度（默认 256）
	Clock      func() time.Time // 可注入时钟（单测用）；nil => time.Now
}

func (c *ManagerConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.UnauthTTL <= 0 {
		c.UnauthTTL = 10 * time.Second
	}
	if c.AuthTTL <= 0 {
		c.AuthTTL = 2 * time.Hour
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = time.Second
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
}

// ===== 连接 =====

// WsConn 一条流式会话。生命周期归 ConnManager 管；
// Send 只由扇出/应答投递，唯一的写协程消费（见 ws_server.go）。
type WsConn struct {
	ConnID     string
	UserID     string // 认证后填充
	Role       string
	Authorized bool

	Conn   *websocket.Conn
	Remote net.Addr

	Send chan []byte
	done chan struct{}
	once sync.Once

	subs map[string]struct{} // convID 集合，随 Remove 原子清空

	CreatedAt time.Time
	UpdatedAt time.Time
	Heartbeat time.Time
	TTL       time.Duration
	ExpireAt  time.Time
}

// Done 连接关闭信号（扇出用它避免向死连接投递）。
func (c *WsConn) Done() <-chan struct{} { return c.done }

func (c *WsConn) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// Push 非阻塞投递；队列满或连接已关 -> TransientDelivery。
func (c *WsConn) Push(b []byte) error {
	select {
	case <-c.done:
		return errs.NewCodeError(errs.TransientDelivery, "connection closed").Wrap()
	default:
	}
	select {
	case c.Send <- b:
		return nil
	case <-c.done:
		return errs.NewCodeError(errs.TransientDelivery, "connection closed").Wrap()
	default:
		return errs.NewCodeError(errs.TransientDelivery, "send queue full").Wrap()
	}
}

// ===== 管理器 =====

// ConnManager 进程内连接注册表：connID 主索引 + userID 辅助索引，
// TTL 清理协程负责宽限期强踢与僵尸回收。
type ConnManager struct {
	mu     sync.RWMutex
	byID   map[string]*WsConn
	byUser map[string]map[string]*WsConn

	conf     ManagerConf
	gwID     string
	onEvict  func(*WsConn) // 过期连接的善后（由 Server 注入：摘订阅 + 断开）
	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewConnManager(gwID string) *ConnManager {
	return NewConnManagerWithConf(ManagerConf{}, gwID)
}

func NewConnManagerWithConf(conf ManagerConf, gwID string) *ConnManager {
	conf.norm()
	m := &ConnManager{
		byID:   make(map[string]*WsConn),
		byUser: make(map[string]map[string]*WsConn),
		conf:   conf,
		gwID:   gwID,
		stopCh: make(chan struct{}),
	}
	go m.sweeper()
	return m
}

func (m *ConnManager) GwID() string { return m.gwID }

// SetOnEvict 必须在接入流量前设置。
func (m *ConnManager) SetOnEvict(f func(*WsConn)) { m.onEvict = f }

func (m *ConnManager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.byID {
		w.shutdown()
	}
	m.byID = map[string]*WsConn{}
	m.byUser = map[string]map[string]*WsConn{}
}

// AddPending 登记新连接（未认证态，宽限期 TTL）。
func (m *ConnManager) AddPending(conn *websocket.Conn) *WsConn {
	now := m.conf.Clock()
	w := &WsConn{
		ConnID:    ids.GenerateString(),
		Conn:      conn,
		Send:      make(chan []byte, m.conf.SendQueue),
		done:      make(chan struct{}),
		subs:      make(map[string]struct{}),
		CreatedAt: now,
		UpdatedAt: now,
		Heartbeat: now,
		TTL:       m.conf.UnauthTTL,
	}
	if conn != nil {
		if ra := conn.RemoteAddr(); ra != nil {
			w.Remote = ra
		}
	}
	w.ExpireAt = now.Add(w.TTL)

	m.mu.Lock()
	m.byID[w.ConnID] = w
	m.mu.Unlock()
	return w
}

func (m *ConnManager) Get(connID string) (*WsConn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.byID[connID]
	return w, ok
}

// BindPrincipal 未认证 -> 已认证；切 AuthTTL 并挂进用户索引。
func (m *ConnManager) BindPrincipal(connID, userID, role string) error {
	if connID == "" || userID == "" {
		return errs.New("connID/userID empty")
	}
	now := m.conf.Clock()
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.byID[connID]
	if !ok {
		return errs.New("conn not found", "connID", connID)
	}
	// 一条连接只绑定一次身份；换人必须重新建连，
	// 否则旧身份下建立的订阅会跟着新主体走
	if w.Authorized {
		return errs.New("conn already bound", "connID", connID, "user", w.UserID)
	}
	w.UserID = userID
	w.Role = role
	w.Authorized = true
	w.TTL = m.conf.AuthTTL
	w.ExpireAt = now.Add(m.conf.AuthTTL)
	w.UpdatedAt = now
	w.Heartbeat = now

	if m.byUser[userID] == nil {
		m.byUser[userID] = make(map[string]*WsConn)
	}
	m.byUser[userID][connID] = w
	return nil
}

// Heartbeat 刷新心跳与到期时间（未认证/已认证都可调）。
func (m *ConnManager) Heartbeat(connID string) error {
	now := m.conf.Clock()
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.byID[connID]
	if !ok {
		return errs.New("conn not found", "connID", connID)
	}
	w.Heartbeat = now
	w.ExpireAt = now.Add(w.TTL)
	w.UpdatedAt = now
	return nil
}

// AttachPongHandler 绑定 gorilla 的 PongHandler，自动心跳续期。
func (m *ConnManager) AttachPongHandler(conn *websocket.Conn, connID string) {
	if conn == nil || connID == "" {
		return
	}
	conn.SetPongHandler(func(string) error {
		_ = m.Heartbeat(connID) // 忽略错误：连接可能刚好被清理
		return nil
	})
}

// AddSub / RemoveSub 维护连接侧的订阅账本（Hub 索引的镜像，断开时用它反查）。
func (m *ConnManager) AddSub(connID, convID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.byID[connID]
	if !ok {
		return errs.New("conn not found", "connID", connID)
	}
	w.subs[convID] = struct{}{}
	return nil
}

func (m *ConnManager) RemoveSub(connID, convID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.byID[connID]; ok {
		delete(w.subs, convID)
	}
}

// SubsOf 返回订阅快照。
func (m *ConnManager) SubsOf(connID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.byID[connID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(w.subs))
	for id := range w.subs {
		out = append(out, id)
	}
	return out
}

// Remove 摘除并关闭连接；幂等，第二次调用返回 nil。
// 返回值带着被摘除时刻的订阅快照，供上层清理 Hub 索引。
func (m *ConnManager) Remove(connID string) (*WsConn, []string) {
	m.mu.Lock()
	w, ok := m.byID[connID]
	if !ok {
		m.mu.Unlock()
		return nil, nil
	}
	delete(m.byID, connID)
	if w.Authorized && w.UserID != "" {
		if mm := m.byUser[w.UserID]; mm != nil {
			delete(mm, connID)
			if len(mm) == 0 {
				delete(m.byUser, w.UserID)
			}
		}
	}
	subs := make([]string, 0, len(w.subs))
	for id := range w.subs {
		subs = append(subs, id)
	}
	w.subs = make(map[string]struct{})
	m.mu.Unlock()

	w.shutdown()
	return w, subs
}

// ConnsOfUser 某用户的所有在线连接（多端）。
func (m *ConnManager) ConnsOfUser(userID string) []*WsConn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*WsConn
	for _, w := range m.byUser[userID] {
		out = append(out, w)
	}
	return out
}

// ===== 清理协程 =====

func (m *ConnManager) sweeper() {
	t := time.NewTicker(m.conf.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case now := <-t.C:
			m.SweepOnce(now)
		}
	}
}

// SweepOnce 收集过期连接并交给 onEvict 善后（导出便于单测直接驱动）。
func (m *ConnManager) SweepOnce(now time.Time) {
	var expired []*WsConn
	m.mu.RLock()
	for _, w := range m.byID {
		if now.After(w.ExpireAt) {
			expired = append(expired, w)
		}
	}
	m.mu.RUnlock()

	for _, w := range expired {
		if m.onEvict != nil {
			m.onEvict(w)
		} else {
			m.Remove(w.ConnID)
		}
	}
}
