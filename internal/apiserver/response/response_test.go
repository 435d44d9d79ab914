package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestOK 测试成功响应信封
func TestOK(t *testing.T) {
	w := httptest.NewRecorder()
	OK(w, http.StatusCreated, map[string]string{"id": "usr-001"})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var envelope map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope["success"] != true {
		t.Error("success should be true")
	}
	resp, ok := envelope["response"].(map[string]any)
	if !ok || resp["id"] != "usr-001" {
		t.Errorf("response = %v", envelope["response"])
	}
	if _, exists := envelope["error"]; exists {
		t.Error("成功信封不应包含 error 字段")
	}
}

// TestOKWithPagination 测试分页信封
func TestOKWithPagination(t *testing.T) {
	w := httptest.NewRecorder()
	OKWithPagination(w, http.StatusOK, []string{"a"}, Pagination{
		StartPage: 2, Limit: 10, TotalPages: 3, TotalRecords: 25,
	})

	var envelope struct {
		Success    bool     `json:"success"`
		Response   []string `json:"response"`
		Pagination struct {
			StartPage    int   `json:"startPage"`
			Limit        int   `json:"limit"`
			TotalPages   int   `json:"totalPages"`
			TotalRecords int64 `json:"totalRecords"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Pagination.TotalRecords != 25 || envelope.Pagination.StartPage != 2 {
		t.Errorf("pagination = %+v", envelope.Pagination)
	}
}

// TestErr 测试错误响应信封
func TestErr(t *testing.T) {
	w := httptest.NewRecorder()
	Err(w, http.StatusBadRequest, CodeAlreadyExist, "User existed", "email", "phone")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var envelope struct {
		Error struct {
			Code    string   `json:"code"`
			Message string   `json:"message"`
			Target  []string `json:"target"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Error.Code != "AlreadyExist" {
		t.Errorf("code = %q", envelope.Error.Code)
	}
	if envelope.Error.Message != "User existed" {
		t.Errorf("message = %q", envelope.Error.Message)
	}
	if len(envelope.Error.Target) != 2 || envelope.Error.Target[0] != "email" {
		t.Errorf("target = %v", envelope.Error.Target)
	}
}

// TestErr_NoTarget 测试无 target 时输出空数组而非 null
func TestErr_NoTarget(t *testing.T) {
	w := httptest.NewRecorder()
	Err(w, http.StatusUnauthorized, CodeUnauthorized, "Permission denied")

	var envelope struct {
		Error struct {
			Target []string `json:"target"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Error.Target == nil {
		t.Error("target 应为空数组而非 null")
	}
}
