package talk

import (
	"context"
	"time"

	"SProject/module/talk/model"
	"SProject/module/talk/seq"
	errs "SProject/tools/errs"
	ids "SProject/tools/ids"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultMaxPageSize 单页上限；未指定 pageSize 时也取它。
const DefaultMaxPageSize = 50

// Store 消息存储：append-only，Append 是唯一写入口。
//
// Page 返回 newest-first；cursor 不透明（见 cursor.go）。
type Store interface {
	// Append 服务端分配 id/seq/createdAt（忽略客户端时间戳）；
	// text 与 attachments 皆空 -> ValidationError。
	Append(ctx context.Context, m *model.MessageModel) (*model.MessageModel, error)
	Page(ctx context.Context, convID, cursor string, pageSize int) ([]*model.MessageModel, string, error)
	Exists(ctx context.Context, convID, messageID string) (bool, error)
	// SeqOf 取某条消息的会话内序号；不存在 -> ErrNotFound。
	SeqOf(ctx context.Context, convID, messageID string) (int64, error)
	// Latest 最新一条；空会话返回 nil。
	Latest(ctx context.Context, convID string) (*model.MessageModel, error)
	MaxSeq(ctx context.Context, convID string) (int64, error)
}

// MarkerStore 已读游标持久化（单调推进在存储层保证）。
type MarkerStore interface {
	// UpsertMarker 仅当 seq 大于当前值时推进；返回是否发生了推进。
	UpsertMarker(ctx context.Context, userID, convID, messageID string, seqNo int64) (bool, error)
	// GetMarker 不存在返回 nil。
	GetMarker(ctx context.Context, userID, convID string) (*model.ReadMarkerModel, error)
}

// ===== Mongo 实现 =====

type MongoStore struct {
	MsgColl     *mongo.Collection
	SeqConvColl *mongo.Collection
	MarkerColl  *mongo.Collection

	Alloc       seq.Allocator
	MaxPageSize int
}

func NewMongoStore(db *mongo.Database, alloc seq.Allocator) *MongoStore {
	return &MongoStore{
		MsgColl:     db.Collection(model.MsgTableName),
		SeqConvColl: db.Collection(model.SeqConvTableName),
		MarkerColl:  db.Collection(model.MarkerTableName),
		Alloc:       alloc,
		MaxPageSize: DefaultMaxPageSize,
	}
}

// EnsureIndexes 建齐查询与并发正确性依赖的索引；启动时调用，幂等。
// read_marker 的唯一键是 UpsertMarker 插入路径防双写的前提，
// message 的 (conversation_id, seq) 服务 Page/SeqOf，且唯一键兜底发号器异常。
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.MsgColl.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "seq", Value: -1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errs.WrapMsg(err, "ensure message index")
	}
	_, err = s.SeqConvColl.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errs.WrapMsg(err, "ensure seq_conversation index")
	}
	_, err = s.MarkerColl.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "conversation_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errs.WrapMsg(err, "ensure read_marker index")
	}
	return nil
}

func (s *MongoStore) clamp(pageSize int) int {
	max := s.MaxPageSize
	if max <= 0 {
		max = DefaultMaxPageSize
	}
	if pageSize <= 0 || pageSize > max {
		return max
	}
	return pageSize
}

func (s *MongoStore) Append(ctx context.Context, m *model.MessageModel) (*model.MessageModel, error) {
	if m.Empty() {
		return nil, errs.ErrValidation.WrapMsg("empty message: need text or attachments")
	}
	n, err := s.Alloc.Next(ctx, m.ConvID)
	if err != nil {
		return nil, errs.WrapMsg(err, "alloc seq", "conv", m.ConvID)
	}

	m.ID = ids.GenerateString()
	m.Seq = n
	m.CreatedAt = time.Now().UnixMilli()

	// 先推水位再落消息：回源水位只许偏高不许偏低。
	// 反过来的顺序下，插入后崩溃（或 Redis key 过期）会让发号器
	// 按旧水位重发已用过的 seq。插入失败只留下一个无害的空洞。
	_, err = s.SeqConvColl.UpdateOne(ctx,
		bson.M{"conversation_id": m.ConvID},
		bson.M{
			"$max": bson.M{"max_seq": m.Seq},
			"$set": bson.M{"update_time": m.CreatedAt},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return nil, errs.WrapMsg(err, "bump max_seq", "conv", m.ConvID)
	}

	if _, err := s.MsgColl.InsertOne(ctx, m); err != nil {
		return nil, errs.WrapMsg(err, "insert message", "conv", m.ConvID)
	}
	return m, nil
}

func (s *MongoStore) Page(ctx context.Context, convID, cursor string, pageSize int) ([]*model.MessageModel, string, error) {
	before, err := DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	limit := s.clamp(pageSize)

	filter := bson.M{"conversation_id": convID}
	if before > 0 {
		filter["seq"] = bson.M{"$lt": before}
	}

	// 多取一条，用于判断是否还有下一页
	cur, err := s.MsgColl.Find(ctx, filter,
		options.Find().SetSort(bson.M{"seq": -1}).SetLimit(int64(limit+1)))
	if err != nil {
		return nil, "", errs.WrapMsg(err, "find messages", "conv", convID)
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []*model.MessageModel
	for cur.Next(ctx) {
		var m model.MessageModel
		if err := cur.Decode(&m); err != nil {
			return nil, "", errs.Wrap(err)
		}
		out = append(out, &m)
	}
	if err := cur.Err(); err != nil {
		return nil, "", errs.Wrap(err)
	}

	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = EncodeCursor(out[limit-1].Seq)
	}
	return out, next, nil
}

func (s *MongoStore) Exists(ctx context.Context, convID, messageID string) (bool, error) {
	n, err := s.MsgColl.CountDocuments(ctx,
		bson.M{"conversation_id": convID, "_id": messageID})
	if err != nil {
		return false, errs.Wrap(err)
	}
	return n > 0, nil
}

func (s *MongoStore) SeqOf(ctx context.Context, convID, messageID string) (int64, error) {
	var m model.MessageModel
	err := s.MsgColl.FindOne(ctx,
		bson.M{"conversation_id": convID, "_id": messageID}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return 0, errs.ErrNotFound.WrapMsg("message not found", "id", messageID)
	}
	if err != nil {
		return 0, errs.Wrap(err)
	}
	return m.Seq, nil
}

func (s *MongoStore) Latest(ctx context.Context, convID string) (*model.MessageModel, error) {
	var m model.MessageModel
	err := s.MsgColl.FindOne(ctx, bson.M{"conversation_id": convID},
		options.FindOne().SetSort(bson.M{"seq": -1})).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return &m, nil
}

func (s *MongoStore) MaxSeq(ctx context.Context, convID string) (int64, error) {
	var sc model.SeqConversation
	err := s.SeqConvColl.FindOne(ctx, bson.M{"conversation_id": convID}).Decode(&sc)
	if err == mongo.ErrNoDocuments {
		return 0, nil
	}
	if err != nil {
		return 0, errs.Wrap(err)
	}
	return sc.MaxSeq, nil
}

// UpsertMarker 两步走：先条件更新（last_seq < seq），没命中再尝试插入；
// 插入撞唯一键说明并发方已推进到更新的值，按 no-op 处理。
func (s *MongoStore) UpsertMarker(ctx context.Context, userID, convID, messageID string, seqNo int64) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := s.MarkerColl.UpdateOne(ctx,
		bson.M{"user_id": userID, "conversation_id": convID, "last_seq": bson.M{"$lt": seqNo}},
		bson.M{"$set": bson.M{"last_read_id": messageID, "last_seq": seqNo, "update_time": now}},
	)
	if err != nil {
		return false, errs.Wrap(err)
	}
	if res.MatchedCount > 0 {
		return true, nil
	}

	// 无既有记录 or 已有更新的游标；只有前者需要插入
	n, err := s.MarkerColl.CountDocuments(ctx,
		bson.M{"user_id": userID, "conversation_id": convID})
	if err != nil {
		return false, errs.Wrap(err)
	}
	if n > 0 {
		return false, nil // 旧游标更靠前或相同 -> no-op
	}

	_, err = s.MarkerColl.InsertOne(ctx, &model.ReadMarkerModel{
		UserID:     userID,
		ConvID:     convID,
		LastReadID: messageID,
		LastSeq:    seqNo,
		UpdateTime: now,
	})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil // 并发插入，对方赢了
	}
	if err != nil {
		return false, errs.Wrap(err)
	}
	return true, nil
}

func (s *MongoStore) GetMarker(ctx context.Context, userID, convID string) (*model.ReadMarkerModel, error) {
	var m model.ReadMarkerModel
	err := s.MarkerColl.FindOne(ctx,
		bson.M{"user_id": userID, "conversation_id": convID}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return &m, nil
}
