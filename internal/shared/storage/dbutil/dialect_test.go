package dbutil

import "testing"

// TestRebindToQuestion 测试占位符转换
func TestRebindToQuestion(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"单个占位符", "SELECT * FROM users WHERE id = $1", "SELECT * FROM users WHERE id = ?"},
		{"多个占位符", "UPDATE users SET user_id = $1, updated_by = $2 WHERE id = $3", "UPDATE users SET user_id = ?, updated_by = ? WHERE id = ?"},
		{"两位数占位符", "INSERT INTO t VALUES ($9, $10, $11)", "INSERT INTO t VALUES (?, ?, ?)"},
		{"无占位符", "SELECT COUNT(*) FROM users", "SELECT COUNT(*) FROM users"},
		{"空串", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RebindToQuestion(tt.query); got != tt.want {
				t.Errorf("RebindToQuestion(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

// TestRebindToPositional 测试 PostgreSQL 占位符原样保留
func TestRebindToPositional(t *testing.T) {
	q := "SELECT * FROM users WHERE id = $1 AND deleted_at IS NULL"
	if got := RebindToPositional(q); got != q {
		t.Errorf("RebindToPositional 改写了查询: %q", got)
	}
}
