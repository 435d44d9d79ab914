package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"accounts-admin/internal/shared/model"
	"accounts-admin/internal/shared/storage"
)

// 编译期接口检查
var _ storage.Store = (*Store)(nil)

const userColumns = `id, user_id, username, email, phone, password_hash, role,
	search_amount_left, created_at, updated_at, created_by, updated_by, deleted_at`

// scanUser 扫描单行用户记录
func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	var userID, email, phone, hash, createdBy, updatedBy sql.NullString
	var deletedAt sql.NullTime
	err := row.Scan(&u.ID, &userID, &u.Username, &email, &phone, &hash, &u.Role,
		&u.SearchAmountLeft, &u.CreatedAt, &u.UpdatedAt, &createdBy, &updatedBy, &deletedAt)
	if err != nil {
		return nil, err
	}
	u.UserID = strOf(userID)
	u.Email = strOf(email)
	u.Phone = strOf(phone)
	u.PasswordHash = strOf(hash)
	u.CreatedBy = strOf(createdBy)
	u.UpdatedBy = strOf(updatedBy)
	if deletedAt.Valid {
		t := deletedAt.Time
		u.DeletedAt = &t
	}
	return u, nil
}

func (s *Store) getUserWhere(ctx context.Context, where string, args ...any) (*model.User, error) {
	query := s.rebind(fmt.Sprintf(`SELECT %s FROM users WHERE %s`, userColumns, where))
	u, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO users (id, user_id, username, email, phone, password_hash, role,
			search_amount_left, created_at, updated_at, created_by, updated_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`),
		user.ID, nullStr(user.UserID), user.Username, nullStr(user.Email), nullStr(user.Phone),
		nullStr(user.PasswordHash), user.Role, user.SearchAmountLeft,
		user.CreatedAt, user.UpdatedAt, nullStr(user.CreatedBy), nullStr(user.UpdatedBy),
	)
	if s.dialect.IsDuplicate(err) {
		return storage.ErrDuplicate
	}
	return err
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.getUserWhere(ctx, `id = $1 AND deleted_at IS NULL`, id)
}

func (s *Store) GetUserByLogin(ctx context.Context, kind model.LoginKind, value string) (*model.User, error) {
	var column string
	switch kind {
	case model.LoginByUserID:
		column = "user_id"
	case model.LoginByEmail:
		column = "email"
	case model.LoginByPhone:
		column = "phone"
	default:
		return nil, fmt.Errorf("unknown login kind %q", kind)
	}
	return s.getUserWhere(ctx, column+` = $1 AND deleted_at IS NULL`, value)
}

func (s *Store) FindUserConflict(ctx context.Context, email, phone, username, userID string) (*model.User, error) {
	var conds []string
	var args []any
	add := func(column, v string) {
		if v != "" {
			args = append(args, v)
			conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
		}
	}
	add("email", email)
	add("phone", phone)
	add("username", username)
	add("user_id", userID)
	if len(conds) == 0 {
		return nil, nil
	}
	return s.getUserWhere(ctx, strings.Join(conds, " OR "), args...)
}

func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash, updatedBy string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE users SET password_hash = $1, updated_at = $2, updated_by = $3
		 WHERE id = $4 AND deleted_at IS NULL`),
		passwordHash, time.Now(), updatedBy, id,
	)
	return affectOne(res, err)
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd storage.UserUpdate) error {
	sets := []string{}
	args := []any{}
	set := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", expr, len(args)))
	}
	if upd.UserID != nil {
		set("user_id", *upd.UserID)
	}
	if upd.PasswordHash != nil {
		set("password_hash", *upd.PasswordHash)
	}
	if upd.SearchAmountLeft != nil {
		set("search_amount_left", *upd.SearchAmountLeft)
	}
	set("updated_at", time.Now())
	set("updated_by", upd.UpdatedBy)

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d AND deleted_at IS NULL`,
		strings.Join(sets, ", "), len(args))

	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if s.dialect.IsDuplicate(err) {
		return storage.ErrDuplicate
	}
	return affectOne(res, err)
}

func (s *Store) SetSearchAmount(ctx context.Context, id string, amount int, updatedBy string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE users SET search_amount_left = $1, updated_at = $2, updated_by = $3
		 WHERE id = $4 AND deleted_at IS NULL`),
		amount, time.Now(), updatedBy, id,
	)
	return affectOne(res, err)
}

func (s *Store) SoftDeleteUser(ctx context.Context, id, deletedBy string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE users SET deleted_at = $1, updated_at = $2, updated_by = $3
		 WHERE id = $4 AND deleted_at IS NULL`),
		time.Now(), time.Now(), deletedBy, id,
	)
	return affectOne(res, err)
}

func (s *Store) ListUsers(ctx context.Context, q storage.ListUsersQuery) ([]*model.User, int64, error) {
	conds := []string{"deleted_at IS NULL"}
	args := []any{}

	if q.Keyword != "" {
		like := "%" + strings.ToLower(q.Keyword) + "%"
		args = append(args, like, like, "%"+q.Keyword+"%")
		conds = append(conds, fmt.Sprintf(
			"(LOWER(email) LIKE $%d OR LOWER(username) LIKE $%d OR phone LIKE $%d)",
			len(args)-2, len(args)-1, len(args)))
	}

	switch q.Filter {
	case storage.FilterHasAccount:
		conds = append(conds, "user_id IS NOT NULL")
	case storage.FilterNoAccount:
		conds = append(conds, "user_id IS NULL")
	}

	where := strings.Join(conds, " AND ")

	var total int64
	countQuery := s.rebind(fmt.Sprintf(`SELECT COUNT(*) FROM users WHERE %s`, where))
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, q.Limit, q.Skip)
	query := s.rebind(fmt.Sprintf(
		`SELECT %s FROM users WHERE %s ORDER BY created_at ASC LIMIT $%d OFFSET $%d`,
		userColumns, where, len(args)-1, len(args)))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := []*model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// affectOne 要求恰好影响一行，零行视为 ErrNotFound
func affectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
