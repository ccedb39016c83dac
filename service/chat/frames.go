package chat

import (
	"encoding/json"
	"time"

	"SProject/module/talk/model"
	decode "SProject/tools/decode"
	errs "SProject/tools/errs"
)

// ===== 帧协议 =====
//
// 每帧一个显式 type，payload 是该类型的必填字段集合；
// 不认识的 type、缺字段、多字段，一律在边界拒绝。

type FrameType string

const (
	// client -> server
	FrameAuth        FrameType = "authenticate"
	FrameSubscribe   FrameType = "subscribe"
	FrameUnsubscribe FrameType = "unsubscribe"
	FrameSend        FrameType = "send"

	// server -> client
	FrameConnAck    FrameType = "conn.ack"
	FrameAuthAck    FrameType = "auth.ack"
	FrameAuthError  FrameType = "auth_error"
	FrameSubAck     FrameType = "sub.ack"
	FrameSendAck    FrameType = "send.ack"
	FrameMessageNew FrameType = "message.new"
	FrameReceipt    FrameType = "receipt.update"
	FrameError      FrameType = "error"
)

type Frame struct {
	Type    FrameType `json:"type"`
	Ts      int64     `json:"ts,omitempty"`
	ConnID  string    `json:"connId,omitempty"`
	Payload any       `json:"payload,omitempty"`
}

// ParseFrameJSON 只接受带合法入站 type 的帧。
func ParseFrameJSON(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errs.ErrValidation.WrapMsg("unmarshal frame", "err", err.Error())
	}
	switch f.Type {
	case FrameAuth, FrameSubscribe, FrameUnsubscribe, FrameSend:
		return &f, nil
	default:
		return nil, errs.ErrValidation.WrapMsg("unknown frame type", "type", string(f.Type))
	}
}

// ===== 入站负载 =====

type AuthPayload struct {
	Token string `json:"token"`
}

type SubscribePayload struct {
	ConversationType string `json:"conversationType"`
	ConversationID   string `json:"conversationId"`
}

type SendPayload struct {
	ConversationType string             `json:"conversationType"`
	ConversationID   string             `json:"conversationId"`
	Text             string             `json:"text,omitempty"`
	Attachments      []model.Attachment `json:"attachments,omitempty"`
}

// DecodePayload 把帧的动态 payload 解码成具体负载结构。
func DecodePayload[T any](f *Frame) (*T, error) {
	m, ok := f.Payload.(map[string]any)
	if !ok {
		return nil, errs.ErrValidation.WrapMsg("payload must be an object", "type", string(f.Type))
	}
	out, err := decode.DecodeMap[T](m)
	if err != nil {
		return nil, errs.ErrValidation.WrapMsg("bad payload", "type", string(f.Type), "err", err.Error())
	}
	return out, nil
}

// ===== 出站构造 =====

func now() int64 { return time.Now().UnixMilli() }

func BuildConnAck(connID string) *Frame {
	return &Frame{Type: FrameConnAck, Ts: now(), ConnID: connID}
}

func BuildAuthAck(connID, userID string) *Frame {
	return &Frame{Type: FrameAuthAck, Ts: now(), ConnID: connID,
		Payload: map[string]any{"userId": userID}}
}

func BuildAuthError(connID, reason string) *Frame {
	return &Frame{Type: FrameAuthError, Ts: now(), ConnID: connID,
		Payload: map[string]any{"reason": reason}}
}

func BuildSubAck(connID, convType, convID string, subscribed bool) *Frame {
	return &Frame{Type: FrameSubAck, Ts: now(), ConnID: connID,
		Payload: map[string]any{
			"conversationType": convType,
			"conversationId":   convID,
			"subscribed":       subscribed,
		}}
}

// BuildSendAck 把已落库的消息原样回给发送者（直接调用结果，不依赖自推送）。
func BuildSendAck(connID string, m *model.MessageModel) *Frame {
	return &Frame{Type: FrameSendAck, Ts: now(), ConnID: connID, Payload: m}
}

func BuildMessageNew(m *model.MessageModel) *Frame {
	return &Frame{Type: FrameMessageNew, Ts: now(), Payload: m}
}

// BuildReceiptUpdate 已读游标推进的多端同步事件（推给同一用户的其他连接）。
func BuildReceiptUpdate(convType, convID, messageID string) *Frame {
	payload := map[string]any{
		"conversationType": convType,
		"conversationId":   convID,
	}
	if messageID != "" {
		payload["messageId"] = messageID
	}
	return &Frame{Type: FrameReceipt, Ts: now(), Payload: payload}
}

func BuildError(connID string, code int, msg string) *Frame {
	return &Frame{Type: FrameError, Ts: now(), ConnID: connID,
		Payload: map[string]any{"code": code, "msg": msg}}
}

// EncodeFrame 帧 -> JSON 字节（写循环消费）。
func EncodeFrame(f *Frame) []byte {
	b, _ := json.Marshal(f)
	return b
}
