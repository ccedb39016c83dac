package chat

import (
	"context"

	"SProject/logger"
	"SProject/module/directory"
	"SProject/module/talk"
	"SProject/module/talk/model"
	"SProject/service/auth"
	errs "SProject/tools/errs"
	safe "SProject/tools/safe"

	"go.uber.org/zap"
)

// Relay 跨网关转发。同一会话的订阅者可能挂在别的网关实例上，
// 本地扇出之后把帧丢给 Relay，由对端网关完成它自己的本地扇出。
type Relay interface {
	Publish(ctx context.Context, origin, convID string, frame []byte) error
	// Subscribe 注册入站回调；实现方必须把 origin 原样带回，便于跳过自己发的。
	Subscribe(handler func(origin, convID string, frame []byte)) error
	Close()
}

// ===== 服务装配 =====

type ServerOptions struct {
	GatewayID string
	Manager   ManagerConf
	Workers   int
	Queue     int
}

// Server 投递中枢：存储先行，扇出随后。
// 所有入口（流式 send 帧、REST POST）最终都汇到 HandleSend。
type Server struct {
	gwID    string
	Auth    auth.Authenticator
	Dir     directory.Resolver
	Store   talk.Store
	Tracker *talk.Tracker

	CM     *ConnManager
	Hub    *Hub
	Fanout *Fanout
	disp   *Dispatcher

	relay Relay
}

func NewServer(opts ServerOptions, a auth.Authenticator, dir directory.Resolver, store talk.Store, tracker *talk.Tracker) *Server {
	if opts.GatewayID == "" {
		opts.GatewayID = "gw-local"
	}
	s := &Server{
		gwID:    opts.GatewayID,
		Auth:    a,
		Dir:     dir,
		Store:   store,
		Tracker: tracker,
		CM:      NewConnManagerWithConf(opts.Manager, opts.GatewayID),
		Hub:     NewHub(),
		Fanout:  NewFanout(opts.Workers, opts.Queue),
	}
	s.disp = NewDispatcher(s)

	// 宽限期到点/TTL 过期的连接统一走 Disconnect
	s.CM.SetOnEvict(func(w *WsConn) {
		logger.Infof("conn expired: connID=%s authorized=%v", w.ConnID, w.Authorized)
		s.Disconnect(w.ConnID)
	})
	// 推送失败只摘当前连接，不影响同会话其他订阅者
	s.Fanout.OnDrop = func(w *WsConn, err error) {
		s.Disconnect(w.ConnID)
	}
	return s
}

func (s *Server) GatewayID() string { return s.gwID }

// AttachRelay 挂载跨网关转发；入站帧跳过本网关发出的。
func (s *Server) AttachRelay(r Relay) error {
	s.relay = r
	return r.Subscribe(func(origin, convID string, frame []byte) {
		if origin == s.gwID {
			return
		}
		s.PublishLocal(convID, frame, "")
	})
}

// PublishLocal 本地扇出一帧（relay 入站与 HandleSend 共用）。
func (s *Server) PublishLocal(convID string, frame []byte, excludeConnID string) {
	conns := s.Hub.Subscribers(convID, excludeConnID)
	if len(conns) == 0 {
		return
	}
	s.Fanout.Dispatch(frame, conns)
}

// HandleSend 发消息的唯一通道：寻址鉴权 -> 落库 -> 扇出。
// originConnID 非空时该连接不收自己的推送（发送方以调用结果为准）。
// 扇出失败不影响返回值；消息已落库即为成功。
func (s *Server) HandleSend(ctx context.Context, key directory.Key, p directory.Principal,
	text string, attachments []model.Attachment, originConnID string) (*model.MessageModel, error) {

	if err := key.Valid(); err != nil {
		return nil, err
	}
	res, err := s.Dir.Resolve(ctx, key, p)
	if err != nil {
		return nil, err
	}

	m := &model.MessageModel{
		ConvID:      res.ConvID,
		ConvKind:    string(key.Kind),
		ConvRef:     key.ID,
		SenderID:    p.UserID,
		Text:        text,
		Attachments: attachments,
	}
	stored, err := s.Store.Append(ctx, m)
	if err != nil {
		return nil, err
	}

	frame := EncodeFrame(BuildMessageNew(stored))
	s.PublishLocal(stored.ConvID, frame, originConnID)

	if s.relay != nil {
		convID := stored.ConvID
		safe.SafeGo(func() {
			if err := s.relay.Publish(context.Background(), s.gwID, convID, frame); err != nil {
				logger.Warnf("relay publish failed: conv=%s err=%v", convID, err)
			}
		})
	}
	return stored, nil
}

// NotifyRead 已读游标推进后同步该用户的所有在线连接（多端一致）。
// 纯通知，投递失败走与普通推送相同的摘除路径。
func (s *Server) NotifyRead(userID, convType, convRef, messageID string) {
	conns := s.CM.ConnsOfUser(userID)
	if len(conns) == 0 {
		return
	}
	s.Fanout.Dispatch(EncodeFrame(BuildReceiptUpdate(convType, convRef, messageID)), conns)
}

// Subscribe 连接订阅会话：必须已认证且在受众内。
func (s *Server) Subscribe(ctx context.Context, connID string, key directory.Key) (string, error) {
	if err := key.Valid(); err != nil {
		return "", err
	}
	w, ok := s.CM.Get(connID)
	if !ok || !w.Authorized {
		return "", errs.ErrUnauthenticated.WrapMsg("subscribe before authenticate")
	}
	p := directory.Principal{UserID: w.UserID, Role: w.Role}
	res, err := s.Dir.Resolve(ctx, key, p)
	if err != nil {
		return "", err
	}

	s.Hub.Subscribe(res.ConvID, w)
	if err := s.CM.AddSub(connID, res.ConvID); err != nil {
		// 订阅瞬间连接被摘除，回滚索引
		s.Hub.Unsubscribe(res.ConvID, connID)
		return "", err
	}
	return res.ConvID, nil
}

// Unsubscribe 幂等；未订阅时也返回成功。
func (s *Server) Unsubscribe(connID string, key directory.Key) (string, error) {
	if err := key.Valid(); err != nil {
		return "", err
	}
	w, ok := s.CM.Get(connID)
	if !ok || !w.Authorized {
		return "", errs.ErrUnauthenticated.WrapMsg("unsubscribe before authenticate")
	}
	convID := directory.ConvID(key, directory.Principal{UserID: w.UserID, Role: w.Role})
	s.Hub.Unsubscribe(convID, connID)
	s.CM.RemoveSub(connID, convID)
	return convID, nil
}

// Disconnect 摘连接并清空它的全部订阅；幂等，恰好清理一次。
func (s *Server) Disconnect(connID string) {
	w, subs := s.CM.Remove(connID)
	if w == nil {
		return
	}
	for _, convID := range subs {
		s.Hub.Unsubscribe(convID, connID)
	}
	if w.Conn != nil {
		_ = w.Conn.Close()
	}
	logger.Debug("conn disconnected",
		zap.String("connID", w.ConnID), zap.Int("subs", len(subs)))
}

func (s *Server) Close() {
	if s.relay != nil {
		s.relay.Close()
	}
	s.Fanout.Close()
	s.CM.Close()
}
