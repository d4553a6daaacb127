package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func runAdminWSAuth(token, header, query string) int {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	req := httptest.NewRequest(http.MethodGet, "/api/admin/ws?token="+query, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c.Request = req

	AdminWSAuthMiddleware(token)(c)
	return rec.Code
}

func TestAdminWSAuthMiddleware_AcceptsQueryToken(t *testing.T) {
	if code := runAdminWSAuth("s3cret", "", "s3cret"); code != http.StatusOK {
		t.Fatalf("expected the query-string token to pass without aborting, got status %d", code)
	}
}

func TestAdminWSAuthMiddleware_AcceptsBearerHeader(t *testing.T) {
	if code := runAdminWSAuth("s3cret", "Bearer s3cret", ""); code != http.StatusOK {
		t.Fatalf("expected the Authorization header to still work, got status %d", code)
	}
}

func TestAdminWSAuthMiddleware_RejectsWrongToken(t *testing.T) {
	if code := runAdminWSAuth("s3cret", "", "wrong"); code != http.StatusForbidden {
		t.Fatalf("expected 403 for a wrong token, got %d", code)
	}
}

func TestAdminWSAuthMiddleware_RejectsMissingToken(t *testing.T) {
	if code := runAdminWSAuth("s3cret", "", ""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a missing token, got %d", code)
	}
}

func TestAdminWSAuthMiddleware_RejectsWhenUnconfigured(t *testing.T) {
	if code := runAdminWSAuth("", "", "anything"); code != http.StatusForbidden {
		t.Fatalf("expected 403 when no admin token is configured, got %d", code)
	}
}
