package model

// SeqConversation 维护某个会话消息流的水位。
// MaxSeq 是已分配的最大序号（allocation waterline，先于消息落库推进，
// 可能领先实际消息一个失败写入的空洞）；发号器冷启动时以它回填 Redis。
type SeqConversation struct {
	ConvID     string `bson:"conversation_id"` // PK
	MaxSeq     int64  `bson:"max_seq"`
	UpdateTime int64  `bson:"update_time"` // Unix ms
}

func (*SeqConversation) TableName() string { return SeqConvTableName }
