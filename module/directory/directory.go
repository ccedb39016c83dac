package directory

import (
	"context"

	errs "SProject/tools/errs"
)

// 会话类型：班级 / 单聊 / 群组
type Kind string

const (
	KindClass Kind = "class"
	KindUser  Kind = "user"
	KindGroup Kind = "group"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindClass, KindUser, KindGroup:
		return Kind(s), nil
	default:
		return "", errs.ErrValidation.WrapMsg("bad conversation type", "type", s)
	}
}

// Key 会话寻址键。ID 区分大小写，原样比较。
type Key struct {
	Kind Kind
	ID   string
}

func (k Key) Valid() error {
	if _, err := ParseKind(string(k.Kind)); err != nil {
		return err
	}
	if k.ID == "" {
		return errs.ErrValidation.WrapMsg("empty conversation id")
	}
	return nil
}

// Principal 已认证主体（来自 Auth Bridge）。
type Principal struct {
	UserID string
	Role   string
}

// Resolution 寻址结果：规范化会话ID + 受众。
// ConvID 形如 cls:<id> / p2p:<min>:<max> / grp:<id>，作为存储与扇出的分区键，
// 单聊双方无论谁发起都落在同一个分区。
type Resolution struct {
	ConvID   string
	Audience []string
}

// Member 判断 user 是否在受众内。
func (r *Resolution) Member(userID string) bool {
	for _, id := range r.Audience {
		if id == userID {
			return true
		}
	}
	return false
}

// Resolver 会话寻址：外部目录（班级花名册/用户/群组成员）的只读查询。
// 不做任何缓存 —— 成员关系随时可能变化，每次调用都回源。
//
// 语义：id 不存在 -> ErrNotFound；principal 不在受众内 -> ErrForbidden。
type Resolver interface {
	Resolve(ctx context.Context, key Key, p Principal) (*Resolution, error)
}

// ConvID 由 key + principal 推导规范化会话ID。
func ConvID(key Key, p Principal) string {
	switch key.Kind {
	case KindClass:
		return "cls:" + key.ID
	case KindGroup:
		return "grp:" + key.ID
	case KindUser:
		a, b := p.UserID, key.ID
		if b < a {
			a, b = b, a
		}
		return "p2p:" + a + ":" + b
	}
	return ""
}
