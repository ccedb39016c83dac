package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"SProject/module/directory"
	"SProject/service/auth"

	"github.com/gin-gonic/gin"
)

func newProtectedRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	authn := auth.NewStatic()
	authn.Put("tok-stu1", directory.Principal{UserID: "stu1", Role: "student"})

	r := gin.New()
	r.GET("/whoami", Middleware(DefaultOptions(authn)), func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"userId": p.UserID})
	})
	return r
}

func get(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareStripsBearerPrefix(t *testing.T) {
	r := newProtectedRouter(t)

	rec := get(r, "Bearer tok-stu1")
	if rec.Code != http.StatusOK {
		t.Fatalf("standard bearer header: got %d body=%s", rec.Code, rec.Body)
	}
	if rec.Body.String() != `{"userId":"stu1"}` {
		t.Fatalf("principal: %s", rec.Body)
	}

	// 前缀大小写不敏感
	if rec := get(r, "bearer tok-stu1"); rec.Code != http.StatusOK {
		t.Fatalf("lowercase bearer: got %d", rec.Code)
	}
}

func TestMiddlewareAcceptsRawToken(t *testing.T) {
	r := newProtectedRouter(t)
	if rec := get(r, "tok-stu1"); rec.Code != http.StatusOK {
		t.Fatalf("raw token: got %d body=%s", rec.Code, rec.Body)
	}
}

func TestMiddlewareRejectsMissingOrBadToken(t *testing.T) {
	r := newProtectedRouter(t)

	if rec := get(r, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: got %d", rec.Code)
	}
	if rec := get(r, "Bearer tok-unknown"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown token: got %d", rec.Code)
	}
	// 只有前缀没有 token
	if rec := get(r, "Bearer "); rec.Code != http.StatusUnauthorized {
		t.Fatalf("empty bearer: got %d", rec.Code)
	}
}
