package directory

import (
	"context"

	errs "SProject/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ===== 存储结构 =====

// ClassModel 班级目录：花名册 = 学生 + 任课老师（消息受众）。
type ClassModel struct {
	ClassID    string   `bson:"class_id"`
	Name       string   `bson:"name"`
	StudentIDs []string `bson:"student_ids"`
	TeacherIDs []string `bson:"teacher_ids"`
}

// GroupModel 自建群组（家委会、社团等）。
type GroupModel struct {
	GroupID   string   `bson:"group_id"`
	Name      string   `bson:"name"`
	OwnerID   string   `bson:"owner_id"`
	MemberIDs []string `bson:"member_ids"`
}

// UserModel 目录里只消费 user_id 的存在性；档案字段归 CRUD 面板管。
type UserModel struct {
	UserID string `bson:"user_id"`
	Role   string `bson:"role"`
}

// MongoResolver 基于学校目录库的寻址实现。
type MongoResolver struct {
	ClassColl *mongo.Collection
	GroupColl *mongo.Collection
	UserColl  *mongo.Collection
}

func NewMongoResolver(db *mongo.Database) *MongoResolver {
	return &MongoResolver{
		ClassColl: db.Collection("class"),
		GroupColl: db.Collection("group"),
		UserColl:  db.Collection("user"),
	}
}

func (r *MongoResolver) Resolve(ctx context.Context, key Key, p Principal) (*Resolution, error) {
	if err := key.Valid(); err != nil {
		return nil, err
	}

	var audience []string
	switch key.Kind {
	case KindClass:
		var c ClassModel
		err := r.ClassColl.FindOne(ctx, bson.M{"class_id": key.ID}).Decode(&c)
		if err == mongo.ErrNoDocuments {
			return nil, errs.ErrNotFound.WrapMsg("class not found", "class_id", key.ID)
		}
		if err != nil {
			return nil, errs.WrapMsg(err, "find class", "class_id", key.ID)
		}
		audience = append(append([]string{}, c.StudentIDs...), c.TeacherIDs...)

	case KindGroup:
		var g GroupModel
		err := r.GroupColl.FindOne(ctx, bson.M{"group_id": key.ID}).Decode(&g)
		if err == mongo.ErrNoDocuments {
			return nil, errs.ErrNotFound.WrapMsg("group not found", "group_id", key.ID)
		}
		if err != nil {
			return nil, errs.WrapMsg(err, "find group", "group_id", key.ID)
		}
		audience = g.MemberIDs

	case KindUser:
		// 受众恰为两端；对端必须真实存在
		n, err := r.UserColl.CountDocuments(ctx, bson.M{"user_id": key.ID})
		if err != nil {
			return nil, errs.WrapMsg(err, "find user", "user_id", key.ID)
		}
		if n == 0 {
			return nil, errs.ErrNotFound.WrapMsg("user not found", "user_id", key.ID)
		}
		audience = []string{p.UserID, key.ID}
	}

	res := &Resolution{ConvID: ConvID(key, p), Audience: audience}
	if !res.Member(p.UserID) {
		return nil, errs.ErrForbidden.WrapMsg("not a member", "user", p.UserID, "conv", res.ConvID)
	}
	return res, nil
}
