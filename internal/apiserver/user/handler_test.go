package user

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"accounts-admin/internal/apiserver/auth"
	"accounts-admin/internal/shared/model"
	"accounts-admin/internal/shared/storage"
)

// mockDirectory 模拟用户目录
type mockDirectory struct {
	users map[string]*model.User
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{users: make(map[string]*model.User)}
}

func (m *mockDirectory) active() []*model.User {
	out := make([]*model.User, 0, len(m.users))
	for _, u := range m.users {
		if !u.IsDeleted() {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *mockDirectory) CreateUser(ctx context.Context, user *model.User) error {
	for _, u := range m.users {
		if (user.UserID != "" && u.UserID == user.UserID) || u.Username == user.Username {
			return storage.ErrDuplicate
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockDirectory) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, ok := m.users[id]
	if !ok || u.IsDeleted() {
		return nil, nil
	}
	return u, nil
}

func (m *mockDirectory) GetUserByLogin(ctx context.Context, kind model.LoginKind, value string) (*model.User, error) {
	for _, u := range m.active() {
		switch kind {
		case model.LoginByUserID:
			if u.UserID == value {
				return u, nil
			}
		case model.LoginByEmail:
			if u.Email == value {
				return u, nil
			}
		case model.LoginByPhone:
			if u.Phone == value {
				return u, nil
			}
		}
	}
	return nil, nil
}

func (m *mockDirectory) FindUserConflict(ctx context.Context, email, phone, username, userID string) (*model.User, error) {
	for _, u := range m.users {
		if (email != "" && u.Email == email) ||
			(phone != "" && u.Phone == phone) ||
			(username != "" && u.Username == username) ||
			(userID != "" && u.UserID == userID) {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockDirectory) UpdateUserPassword(ctx context.Context, id, passwordHash, updatedBy string) error {
	u, ok := m.users[id]
	if !ok || u.IsDeleted() {
		return storage.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedBy = updatedBy
	return nil
}

func (m *mockDirectory) UpdateUser(ctx context.Context, id string, upd storage.UserUpdate) error {
	u, ok := m.users[id]
	if !ok || u.IsDeleted() {
		return storage.ErrNotFound
	}
	if upd.UserID != nil {
		for _, other := range m.users {
			if other.ID != id && other.UserID == *upd.UserID {
				return storage.ErrDuplicate
			}
		}
		u.UserID = *upd.UserID
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.SearchAmountLeft != nil {
		u.SearchAmountLeft = *upd.SearchAmountLeft
	}
	u.UpdatedBy = upd.UpdatedBy
	u.UpdatedAt = time.Now()
	return nil
}

func (m *mockDirectory) SetSearchAmount(ctx context.Context, id string, amount int, updatedBy string) error {
	u, ok := m.users[id]
	if !ok || u.IsDeleted() {
		return storage.ErrNotFound
	}
	u.SearchAmountLeft = amount
	u.UpdatedBy = updatedBy
	return nil
}

func (m *mockDirectory) SoftDeleteUser(ctx context.Context, id, deletedBy string) error {
	u, ok := m.users[id]
	if !ok || u.IsDeleted() {
		return storage.ErrNotFound
	}
	now := time.Now()
	u.DeletedAt = &now
	u.UpdatedBy = deletedBy
	return nil
}

func (m *mockDirectory) ListUsers(ctx context.Context, q storage.ListUsersQuery) ([]*model.User, int64, error) {
	var matched []*model.User
	for _, u := range m.active() {
		if q.Keyword != "" &&
			!strings.Contains(strings.ToLower(u.Username), strings.ToLower(q.Keyword)) &&
			!strings.Contains(strings.ToLower(u.Email), strings.ToLower(q.Keyword)) &&
			!strings.Contains(u.Phone, q.Keyword) {
			continue
		}
		switch q.Filter {
		case storage.FilterHasAccount:
			if u.UserID == "" {
				continue
			}
		case storage.FilterNoAccount:
			if u.UserID != "" {
				continue
			}
		}
		matched = append(matched, u)
	}
	total := int64(len(matched))
	if q.Skip >= total {
		return []*model.User{}, total, nil
	}
	end := q.Skip + q.Limit
	if end > total {
		end = total
	}
	return matched[q.Skip:end], total, nil
}

// seedAdmin 预置管理员并返回带其身份的请求修饰函数
func seedAdmin(t *testing.T, m *mockDirectory) func(*http.Request) {
	t.Helper()
	admin := &model.User{
		ID:        model.NewID(),
		UserID:    "root",
		Username:  "root",
		Role:      model.UserRoleAdmin,
		CreatedAt: time.Now().Add(-time.Hour),
	}
	m.users[admin.ID] = admin
	return func(r *http.Request) {
		ctx := auth.WithIdentity(r.Context(), &auth.Identity{UserID: "root", Role: model.UserRoleAdmin})
		*r = *r.WithContext(ctx)
	}
}

func seedUser(m *mockDirectory, userID, username string, quota int) *model.User {
	u := &model.User{
		ID:               model.NewID(),
		UserID:           userID,
		Username:         username,
		Role:             model.UserRoleUser,
		SearchAmountLeft: quota,
		CreatedAt:        time.Now(),
	}
	if userID != "" {
		u.PasswordHash = "$2a$06$seeded"
	}
	m.users[u.ID] = u
	return u
}

func doRequest(t *testing.T, handler http.HandlerFunc, method, path string, body any, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func testCfg() auth.Config {
	return auth.Config{JWTSecret: "test-secret", AdminToken: "admin-token", BcryptCost: auth.DefaultBcryptCost}
}

// ============================================================================
// 准入
// ============================================================================

// TestRequireAdmin 测试管理员准入检查
func TestRequireAdmin(t *testing.T) {
	t.Run("无会话拒绝", func(t *testing.T) {
		h := NewHandler(newMockDirectory(), nil, testCfg())
		w := doRequest(t, h.ListUsers, "GET", "/api/v1/users", nil, nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", w.Code)
		}
	})

	t.Run("普通用户拒绝", func(t *testing.T) {
		store := newMockDirectory()
		seedUser(store, "alice", "alice", 10)
		h := NewHandler(store, nil, testCfg())
		w := doRequest(t, h.ListUsers, "GET", "/api/v1/users", nil, func(r *http.Request) {
			ctx := auth.WithIdentity(r.Context(), &auth.Identity{UserID: "alice", Role: model.UserRoleUser})
			*r = *r.WithContext(ctx)
		})
		if w.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", w.Code)
		}
	})

	t.Run("令牌声称管理员但目录角色已降级", func(t *testing.T) {
		store := newMockDirectory()
		seedUser(store, "ex-admin", "ex-admin", 10)
		h := NewHandler(store, nil, testCfg())
		w := doRequest(t, h.ListUsers, "GET", "/api/v1/users", nil, func(r *http.Request) {
			ctx := auth.WithIdentity(r.Context(), &auth.Identity{UserID: "ex-admin", Role: model.UserRoleAdmin})
			*r = *r.WithContext(ctx)
		})
		if w.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", w.Code)
		}
	})
}

// ============================================================================
// List / Get
// ============================================================================

// TestListUsers 测试用户列表
func TestListUsers(t *testing.T) {
	store := newMockDirectory()
	asAdmin := seedAdmin(t, store)
	seedUser(store, "alice", "alice", 10)
	seedUser(store, "", "profile-only", 0)
	h := NewHandler(store, nil, testCfg())

	t.Run("全部", func(t *testing.T) {
		w := doRequest(t, h.ListUsers, "GET", "/api/v1/users", nil, asAdmin)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
		}
		var envelope struct {
			Response   []model.User `json:"response"`
			Pagination struct {
				TotalRecords int64 `json:"totalRecords"`
				TotalPages   int   `json:"totalPages"`
				StartPage    int   `json:"startPage"`
			} `json:"pagination"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if envelope.Pagination.TotalRecords != 3 {
			t.Errorf("totalRecords = %d, want 3", envelope.Pagination.TotalRecords)
		}
		if envelope.Pagination.StartPage != 1 {
			t.Errorf("startPage = %d, want 1", envelope.Pagination.StartPage)
		}
	})

	t.Run("按开户状态过滤", func(t *testing.T) {
		w := doRequest(t, h.ListUsers, "GET", "/api/v1/users?filter=not_have_account", nil, asAdmin)
		var envelope struct {
			Response []model.User `json:"response"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(envelope.Response) != 1 || envelope.Response[0].Username != "profile-only" {
			t.Errorf("response = %+v", envelope.Response)
		}
	})

	t.Run("非法过滤条件", func(t *testing.T) {
		w := doRequest(t, h.ListUsers, "GET", "/api/v1/users?filter=bogus", nil, asAdmin)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})

	t.Run("分页", func(t *testing.T) {
		w := doRequest(t, h.ListUsers, "GET", "/api/v1/users?startPage=2&limit=2", nil, asAdmin)
		var envelope struct {
			Response   []model.User `json:"response"`
			Pagination struct {
				TotalPages int `json:"totalPages"`
				Limit      int `json:"limit"`
			} `json:"pagination"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(envelope.Response) != 1 {
			t.Errorf("第二页应只剩 1 条，got %d", len(envelope.Response))
		}
		if envelope.Pagination.TotalPages != 2 {
			t.Errorf("totalPages = %d, want 2", envelope.Pagination.TotalPages)
		}
	})

	t.Run("关键字", func(t *testing.T) {
		w := doRequest(t, h.ListUsers, "GET", "/api/v1/users?keyword=alice", nil, asAdmin)
		var envelope struct {
			Response []model.User `json:"response"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(envelope.Response) != 1 || envelope.Response[0].UserID != "alice" {
			t.Errorf("response = %+v", envelope.Response)
		}
	})
}

// TestGetUser 测试用户详情
func TestGetUser(t *testing.T) {
	store := newMockDirectory()
	asAdmin := seedAdmin(t, store)
	target := seedUser(store, "alice", "alice", 10)
	h := NewHandler(store, nil, testCfg())

	t.Run("存在", func(t *testing.T) {
		w := doRequest(t, h.GetUser, "GET", "/api/v1/users/"+target.ID, nil, func(r *http.Request) {
			asAdmin(r)
			r.SetPathValue("id", target.ID)
		})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("不存在", func(t *testing.T) {
		w := doRequest(t, h.GetUser, "GET", "/api/v1/users/usr-missing", nil, func(r *http.Request) {
			asAdmin(r)
			r.SetPathValue("id", "usr-missing")
		})
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", w.Code)
		}
	})
}

// ============================================================================
// Create / Update / Quota / Delete
// ============================================================================

// TestCreateUser 测试管理员创建用户
func TestCreateUser(t *testing.T) {
	cfg := testCfg()

	t.Run("必填项缺失", func(t *testing.T) {
		store := newMockDirectory()
		asAdmin := seedAdmin(t, store)
		h := NewHandler(store, nil, cfg)
		w := doRequest(t, h.CreateUser, "POST", "/api/v1/users", map[string]any{"userId": "alice"}, asAdmin)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})

	t.Run("缺省值", func(t *testing.T) {
		store := newMockDirectory()
		asAdmin := seedAdmin(t, store)
		h := NewHandler(store, nil, cfg)
		w := doRequest(t, h.CreateUser, "POST", "/api/v1/users", map[string]any{
			"userId": "alice", "password": "pw",
		}, asAdmin)
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
		}
		u, _ := store.GetUserByLogin(context.Background(), model.LoginByUserID, "alice")
		if u == nil {
			t.Fatal("用户未入库")
		}
		if u.Username != "alice" {
			t.Errorf("username 应缺省为 userId，got %q", u.Username)
		}
		if u.SearchAmountLeft != model.DefaultSearchAmount {
			t.Errorf("searchAmountLeft = %d, want %d", u.SearchAmountLeft, model.DefaultSearchAmount)
		}
		if u.CreatedBy != "root" {
			t.Errorf("createdBy = %q, want root", u.CreatedBy)
		}
	})

	t.Run("userId 已被占用", func(t *testing.T) {
		store := newMockDirectory()
		asAdmin := seedAdmin(t, store)
		seedUser(store, "alice", "alice", 10)
		h := NewHandler(store, nil, cfg)
		w := doRequest(t, h.CreateUser, "POST", "/api/v1/users", map[string]any{
			"userId": "alice", "password": "pw",
		}, asAdmin)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})
}

// TestUpdateUser 测试管理员更新用户
func TestUpdateUser(t *testing.T) {
	cfg := testCfg()
	store := newMockDirectory()
	asAdmin := seedAdmin(t, store)
	target := seedUser(store, "alice", "alice", 10)
	h := NewHandler(store, nil, cfg)

	withID := func(id string) func(*http.Request) {
		return func(r *http.Request) {
			asAdmin(r)
			r.SetPathValue("id", id)
		}
	}

	t.Run("空更新拒绝", func(t *testing.T) {
		w := doRequest(t, h.UpdateUser, "PUT", "/api/v1/users/"+target.ID, map[string]any{}, withID(target.ID))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})

	t.Run("更新配额与密码", func(t *testing.T) {
		w := doRequest(t, h.UpdateUser, "PUT", "/api/v1/users/"+target.ID, map[string]any{
			"password": "rotated", "searchAmountLeft": 7,
		}, withID(target.ID))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
		}
		if target.SearchAmountLeft != 7 {
			t.Errorf("searchAmountLeft = %d, want 7", target.SearchAmountLeft)
		}
		if !auth.CheckPassword("rotated", target.PasswordHash) {
			t.Error("新密码应可校验")
		}
	})

	t.Run("负配额拒绝", func(t *testing.T) {
		w := doRequest(t, h.UpdateUser, "PUT", "/api/v1/users/"+target.ID, map[string]any{
			"searchAmountLeft": -1,
		}, withID(target.ID))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})

	t.Run("不存在的用户", func(t *testing.T) {
		w := doRequest(t, h.UpdateUser, "PUT", "/api/v1/users/usr-missing", map[string]any{
			"searchAmountLeft": 1,
		}, withID("usr-missing"))
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", w.Code)
		}
	})
}

// TestSetSearchAmount 测试配额直设
func TestSetSearchAmount(t *testing.T) {
	store := newMockDirectory()
	asAdmin := seedAdmin(t, store)
	target := seedUser(store, "alice", "alice", 10)
	h := NewHandler(store, nil, testCfg())

	withID := func(id string) func(*http.Request) {
		return func(r *http.Request) {
			asAdmin(r)
			r.SetPathValue("id", id)
		}
	}

	t.Run("设置成功", func(t *testing.T) {
		w := doRequest(t, h.SetSearchAmount, "PUT", "/api/v1/users/"+target.ID+"/search-amount-left",
			map[string]any{"searchAmountLeft": 99}, withID(target.ID))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
		}
		if target.SearchAmountLeft != 99 {
			t.Errorf("searchAmountLeft = %d, want 99", target.SearchAmountLeft)
		}
	})

	t.Run("缺少数值", func(t *testing.T) {
		w := doRequest(t, h.SetSearchAmount, "PUT", "/api/v1/users/"+target.ID+"/search-amount-left",
			map[string]any{}, withID(target.ID))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})

	t.Run("负数拒绝", func(t *testing.T) {
		w := doRequest(t, h.SetSearchAmount, "PUT", "/api/v1/users/"+target.ID+"/search-amount-left",
			map[string]any{"searchAmountLeft": -5}, withID(target.ID))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})
}

// TestDeleteUser 测试软删除
func TestDeleteUser(t *testing.T) {
	store := newMockDirectory()
	asAdmin := seedAdmin(t, store)
	target := seedUser(store, "alice", "alice", 10)
	h := NewHandler(store, nil, testCfg())

	withID := func(id string) func(*http.Request) {
		return func(r *http.Request) {
			asAdmin(r)
			r.SetPathValue("id", id)
		}
	}

	w := doRequest(t, h.DeleteUser, "DELETE", "/api/v1/users/"+target.ID, nil, withID(target.ID))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
	}
	if !target.IsDeleted() {
		t.Error("记录应被标记软删除")
	}

	// 删除后所有查询都不应再看到该用户
	if u, _ := store.GetUserByID(context.Background(), target.ID); u != nil {
		t.Error("软删除后按 ID 查询应返回空")
	}
	if u, _ := store.GetUserByLogin(context.Background(), model.LoginByUserID, "alice"); u != nil {
		t.Error("软删除后按登录标识查询应返回空")
	}

	// 重复删除
	w = doRequest(t, h.DeleteUser, "DELETE", "/api/v1/users/"+target.ID, nil, withID(target.ID))
	if w.Code != http.StatusNotFound {
		t.Fatalf("重复删除 status = %d, want 404", w.Code)
	}
}
