package model

// ===== 常量 =====

const (
	MsgTableName     = "message"          // 消息集合
	SeqConvTableName = "seq_conversation" // 会话水位集合
	MarkerTableName  = "read_marker"      // 已读游标集合
)

// Attachment 附件引用（对象存储里的指针，不落二进制）。
type Attachment struct {
	URL         string `bson:"url" json:"url"`
	Name        string `bson:"name,omitempty" json:"name,omitempty"`
	ContentType string `bson:"content_type,omitempty" json:"contentType,omitempty"`
	Size        int64  `bson:"size,omitempty" json:"size,omitempty"`
}

// MessageModel 一条会话消息。只增不改不删；Seq 为会话内全序。
//
// ConvID 是规范化分区键（cls:<id> / p2p:<min>:<max> / grp:<id>）；
// ConvRef 是客户端视角的会话 id（班级/群组 id，单聊为 <min>:<max>）。
type MessageModel struct {
	ID       string `bson:"_id" json:"id"`
	ConvID   string `bson:"conversation_id" json:"-"`
	ConvKind string `bson:"conversation_type" json:"conversationType"`
	ConvRef  string `bson:"conversation_ref" json:"conversationId"`

	SenderID    string       `bson:"sender_id" json:"senderId"`
	Text        string       `bson:"text,omitempty" json:"text,omitempty"`
	Attachments []Attachment `bson:"attachments,omitempty" json:"attachments,omitempty"`

	Seq       int64 `bson:"seq" json:"seq"`              // 会话内自增序列（存储侧分配）
	CreatedAt int64 `bson:"created_at" json:"createdAt"` // Unix ms（服务端时钟）
}

func (*MessageModel) TableName() string { return MsgTableName }

// Empty 文本与附件皆空 -> 不可入库
func (m *MessageModel) Empty() bool {
	return m.Text == "" && len(m.Attachments) == 0
}
