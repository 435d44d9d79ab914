package mongostore

import (
	"context"

	"accounts-admin/internal/shared/model"
	"accounts-admin/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DecrementSearchAmount 条件扣减查询配额
//
// 过滤条件带 search_amount_left > 0，扣减与判断在数据库侧单次原子操作完成，
// 并发请求不会把配额扣成负数；未命中视为配额耗尽。
func (s *Store) DecrementSearchAmount(ctx context.Context, userID string) error {
	res, err := s.col(ColUsers).UpdateOne(ctx,
		active(bson.D{
			{Key: "user_id", Value: userID},
			{Key: "search_amount_left", Value: bson.D{{Key: "$gt", Value: 0}}},
		}),
		bson.D{{Key: "$inc", Value: bson.D{{Key: "search_amount_left", Value: -1}}}},
	)
	if err != nil {
		return wrapError(err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrQuotaExceeded
	}
	return nil
}

func (s *Store) CreateSearchRecord(ctx context.Context, rec *model.SearchRecord) error {
	return insertOne(ctx, s.col(ColSearchRecords), rec)
}

func (s *Store) ListSearchRecords(ctx context.Context, userID string) ([]*model.SearchRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return findMany[model.SearchRecord](ctx, s.col(ColSearchRecords), bson.D{{Key: "user_id", Value: userID}}, opts)
}
