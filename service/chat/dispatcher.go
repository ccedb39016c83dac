package chat

import (
	"context"

	"SProject/logger"
	"SProject/module/directory"
	errs "SProject/tools/errs"
)

// Handler 处理一种入站帧类型。返回错误时由 Dispatcher 统一回 error 帧。
type Handler interface {
	Type() FrameType
	Handle(ctx context.Context, w *WsConn, f *Frame) error
}

type Dispatcher struct {
	handlers map[FrameType]Handler
}

func NewDispatcher(s *Server) *Dispatcher {
	d := &Dispatcher{handlers: make(map[FrameType]Handler)}
	d.Register(&authHandler{s: s})
	d.Register(&subscribeHandler{s: s})
	d.Register(&unsubscribeHandler{s: s})
	d.Register(&sendHandler{s: s})
	return d
}

func (d *Dispatcher) Register(h Handler) {
	d.handlers[h.Type()] = h
}

// Dispatch 读循环的落点：解析 -> 路由 -> 失败回 error 帧。
// 坏帧不断连接，只回错误；投递层的断连由 Server 决定。
func (d *Dispatcher) Dispatch(ctx context.Context, w *WsConn, raw []byte) {
	f, err := ParseFrameJSON(raw)
	if err != nil {
		d.reply(w, BuildError(w.ConnID, errs.CodeOf(err), err.Error()))
		return
	}
	h, ok := d.handlers[f.Type]
	if !ok {
		d.reply(w, BuildError(w.ConnID, errs.ValidationError, "unsupported frame type"))
		return
	}
	if err := h.Handle(ctx, w, f); err != nil {
		d.reply(w, BuildError(w.ConnID, errs.CodeOf(err), err.Error()))
	}
}

func (d *Dispatcher) reply(w *WsConn, f *Frame) {
	if err := w.Push(EncodeFrame(f)); err != nil {
		logger.Warnf("reply failed: connID=%s type=%s err=%v", w.ConnID, f.Type, err)
	}
}

// ===== authenticate =====

type authHandler struct{ s *Server }

func (h *authHandler) Type() FrameType { return FrameAuth }

// 认证失败回 auth_error 但不立即断开：宽限期内允许重试，
// 到点仍未认证由清理协程强踢。
func (h *authHandler) Handle(ctx context.Context, w *WsConn, f *Frame) error {
	if w.Authorized {
		return errs.ErrValidation.WrapMsg("already authenticated", "user", w.UserID)
	}
	p, err := DecodePayload[AuthPayload](f)
	if err != nil {
		return err
	}
	principal, err := h.s.Auth.Authenticate(ctx, p.Token)
	if err != nil {
		logger.Warnf("authenticate failed: connID=%s err=%v", w.ConnID, err)
		return w.Push(EncodeFrame(BuildAuthError(w.ConnID, "invalid credential")))
	}
	if err := h.s.CM.BindPrincipal(w.ConnID, principal.UserID, principal.Role); err != nil {
		return errs.ErrInternal.WrapMsg("bind principal", "err", err.Error())
	}
	return w.Push(EncodeFrame(BuildAuthAck(w.ConnID, principal.UserID)))
}

// ===== subscribe / unsubscribe =====

type subscribeHandler struct{ s *Server }

func (h *subscribeHandler) Type() FrameType { return FrameSubscribe }

func (h *subscribeHandler) Handle(ctx context.Context, w *WsConn, f *Frame) error {
	p, err := DecodePayload[SubscribePayload](f)
	if err != nil {
		return err
	}
	kind, err := directory.ParseKind(p.ConversationType)
	if err != nil {
		return err
	}
	if _, err := h.s.Subscribe(ctx, w.ConnID, directory.Key{Kind: kind, ID: p.ConversationID}); err != nil {
		return err
	}
	return w.Push(EncodeFrame(BuildSubAck(w.ConnID, p.ConversationType, p.ConversationID, true)))
}

type unsubscribeHandler struct{ s *Server }

func (h *unsubscribeHandler) Type() FrameType { return FrameUnsubscribe }

func (h *unsubscribeHandler) Handle(_ context.Context, w *WsConn, f *Frame) error {
	p, err := DecodePayload[SubscribePayload](f)
	if err != nil {
		return err
	}
	kind, err := directory.ParseKind(p.ConversationType)
	if err != nil {
		return err
	}
	if _, err := h.s.Unsubscribe(w.ConnID, directory.Key{Kind: kind, ID: p.ConversationID}); err != nil {
		return err
	}
	return w.Push(EncodeFrame(BuildSubAck(w.ConnID, p.ConversationType, p.ConversationID, false)))
}

// ===== send =====

type sendHandler struct{ s *Server }

func (h *sendHandler) Type() FrameType { return FrameSend }

func (h *sendHandler) Handle(ctx context.Context, w *WsConn, f *Frame) error {
	if !w.Authorized {
		return errs.ErrUnauthenticated.WrapMsg("send before authenticate")
	}
	p, err := DecodePayload[SendPayload](f)
	if err != nil {
		return err
	}
	kind, err := directory.ParseKind(p.ConversationType)
	if err != nil {
		return err
	}
	stored, err := h.s.HandleSend(ctx,
		directory.Key{Kind: kind, ID: p.ConversationID},
		directory.Principal{UserID: w.UserID, Role: w.Role},
		p.Text, p.Attachments, w.ConnID)
	if err != nil {
		return err
	}
	return w.Push(EncodeFrame(BuildSendAck(w.ConnID, stored)))
}
