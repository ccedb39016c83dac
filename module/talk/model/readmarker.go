package model

// ReadMarkerModel 用户在某会话的已读游标。只会向前推进，永不回退。
// 唯一键：(user_id, conversation_id)。
type ReadMarkerModel struct {
	UserID     string `bson:"user_id" json:"userId"`
	ConvID     string `bson:"conversation_id" json:"-"`
	LastReadID string `bson:"last_read_id" json:"lastReadMessageId"`
	LastSeq    int64  `bson:"last_seq" json:"lastReadSeq"`
	UpdateTime int64  `bson:"update_time" json:"-"`
}

func (*ReadMarkerModel) TableName() string { return MarkerTableName }
