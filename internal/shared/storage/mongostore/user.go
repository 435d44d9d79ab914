package mongostore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"accounts-admin/internal/shared/model"
	"accounts-admin/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// 编译期接口检查
var _ storage.Store = (*Store)(nil)

// loginField 登录标识类型对应的文档字段
var loginField = map[model.LoginKind]string{
	model.LoginByUserID: "user_id",
	model.LoginByEmail:  "email",
	model.LoginByPhone:  "phone",
}

// active 在过滤条件上追加"未软删除"约束
func active(filter bson.D) bson.D {
	return append(filter, bson.E{Key: "deleted_at", Value: bson.D{{Key: "$exists", Value: false}}})
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	return insertOne(ctx, s.col(ColUsers), user)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return findOne[model.User](ctx, s.col(ColUsers), active(bson.D{{Key: "_id", Value: id}}))
}

func (s *Store) GetUserByLogin(ctx context.Context, kind model.LoginKind, value string) (*model.User, error) {
	field, ok := loginField[kind]
	if !ok {
		return nil, fmt.Errorf("unknown login kind %q", kind)
	}
	return findOne[model.User](ctx, s.col(ColUsers), active(bson.D{{Key: field, Value: value}}))
}

// FindUserConflict 按任一非空标识查找已有记录
// 故意不排除软删除记录：唯一索引同样覆盖已删除文档，
// 存在性检查必须与索引的裁决范围一致
func (s *Store) FindUserConflict(ctx context.Context, email, phone, username, userID string) (*model.User, error) {
	var or []bson.D
	if email != "" {
		or = append(or, bson.D{{Key: "email", Value: email}})
	}
	if phone != "" {
		or = append(or, bson.D{{Key: "phone", Value: phone}})
	}
	if username != "" {
		or = append(or, bson.D{{Key: "username", Value: username}})
	}
	if userID != "" {
		or = append(or, bson.D{{Key: "user_id", Value: userID}})
	}
	if len(or) == 0 {
		return nil, nil
	}
	return findOne[model.User](ctx, s.col(ColUsers), bson.D{{Key: "$or", Value: or}})
}

func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash, updatedBy string) error {
	return updateFields(ctx, s.col(ColUsers), id, bson.D{
		{Key: "password_hash", Value: passwordHash},
		{Key: "updated_at", Value: time.Now()},
		{Key: "updated_by", Value: updatedBy},
	})
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd storage.UserUpdate) error {
	set := bson.D{
		{Key: "updated_at", Value: time.Now()},
		{Key: "updated_by", Value: upd.UpdatedBy},
	}
	if upd.UserID != nil {
		set = append(set, bson.E{Key: "user_id", Value: *upd.UserID})
	}
	if upd.PasswordHash != nil {
		set = append(set, bson.E{Key: "password_hash", Value: *upd.PasswordHash})
	}
	if upd.SearchAmountLeft != nil {
		set = append(set, bson.E{Key: "search_amount_left", Value: *upd.SearchAmountLeft})
	}
	return updateFields(ctx, s.col(ColUsers), id, set)
}

func (s *Store) SetSearchAmount(ctx context.Context, id string, amount int, updatedBy string) error {
	return updateFields(ctx, s.col(ColUsers), id, bson.D{
		{Key: "search_amount_left", Value: amount},
		{Key: "updated_at", Value: time.Now()},
		{Key: "updated_by", Value: updatedBy},
	})
}

func (s *Store) SoftDeleteUser(ctx context.Context, id, deletedBy string) error {
	res, err := s.col(ColUsers).UpdateOne(ctx,
		active(bson.D{{Key: "_id", Value: id}}),
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "deleted_at", Value: time.Now()},
			{Key: "updated_at", Value: time.Now()},
			{Key: "updated_by", Value: deletedBy},
		}}},
	)
	if err != nil {
		return wrapError(err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context, q storage.ListUsersQuery) ([]*model.User, int64, error) {
	filter := active(bson.D{})

	if q.Keyword != "" {
		kw := regexp.QuoteMeta(q.Keyword)
		ci := bson.D{{Key: "$regex", Value: kw}, {Key: "$options", Value: "i"}}
		filter = append(filter, bson.E{Key: "$or", Value: []bson.D{
			{{Key: "email", Value: ci}},
			{{Key: "username", Value: ci}},
			{{Key: "phone", Value: bson.D{{Key: "$regex", Value: kw}}}},
		}})
	}

	switch q.Filter {
	case storage.FilterHasAccount:
		filter = append(filter, bson.E{Key: "user_id", Value: bson.D{{Key: "$exists", Value: true}}})
	case storage.FilterNoAccount:
		filter = append(filter, bson.E{Key: "user_id", Value: bson.D{{Key: "$exists", Value: false}}})
	}

	total, err := s.col(ColUsers).CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, wrapError(err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetSkip(q.Skip).
		SetLimit(q.Limit)
	users, err := findMany[model.User](ctx, s.col(ColUsers), filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}
