package repository

import (
	"context"
	"database/sql"

	"accounts-admin/internal/shared/model"
	"accounts-admin/internal/shared/storage"
)

// DecrementSearchAmount 条件扣减查询配额
// WHERE 带 search_amount_left > 0，单条 UPDATE 原子完成判断与扣减
func (s *Store) DecrementSearchAmount(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE users SET search_amount_left = search_amount_left - 1
		 WHERE user_id = $1 AND deleted_at IS NULL AND search_amount_left > 0`),
		userID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrQuotaExceeded
	}
	return nil
}

func (s *Store) CreateSearchRecord(ctx context.Context, rec *model.SearchRecord) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO user_search_records (id, user_id, name, birthday, phone, company, created_at, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`),
		rec.ID, rec.UserID, rec.Name, rec.Birthday, nullStr(rec.Phone), nullStr(rec.Company),
		rec.CreatedAt, nullStr(rec.CreatedBy),
	)
	if s.dialect.IsDuplicate(err) {
		return storage.ErrDuplicate
	}
	return err
}

func (s *Store) ListSearchRecords(ctx context.Context, userID string) ([]*model.SearchRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, user_id, name, birthday, phone, company, created_at, created_by
		 FROM user_search_records WHERE user_id = $1 ORDER BY created_at DESC`),
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*model.SearchRecord{}
	for rows.Next() {
		rec := &model.SearchRecord{}
		var phone, company, createdBy sql.NullString
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Name, &rec.Birthday,
			&phone, &company, &rec.CreatedAt, &createdBy); err != nil {
			return nil, err
		}
		rec.Phone = strOf(phone)
		rec.Company = strOf(company)
		rec.CreatedBy = strOf(createdBy)
		records = append(records, rec)
	}
	return records, rows.Err()
}
