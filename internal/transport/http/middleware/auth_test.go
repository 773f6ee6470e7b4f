package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/usecase"
)

type fakeResolver struct {
	users map[string]domain.User
	err   error
}

func (f fakeResolver) ResolveIdentity(_ context.Context, bearer string) (domain.User, error) {
	if f.err != nil {
		return domain.User{}, f.err
	}
	user, ok := f.users[bearer]
	if !ok {
		return domain.User{}, usecase.ErrInvalidToken
	}
	return user, nil
}

func newAuthRouter(resolver IdentityResolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(EnrichContext())
	router.GET("/me", RequireAuth(resolver), func(c *gin.Context) {
		id, _ := GetAuthenticatedUserID(c)
		c.String(http.StatusOK, id)
	})
	router.GET("/admin", RequireAuth(resolver), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func serve(router *gin.Engine, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRequireAuth(t *testing.T) {
	resolver := fakeResolver{users: map[string]domain.User{
		"customer-token": {ID: "u-1"},
		"admin-token":    {ID: "u-2", IsSuperuser: true},
	}}
	router := newAuthRouter(resolver)

	if rr := serve(router, "/me", "Bearer customer-token"); rr.Code != http.StatusOK || rr.Body.String() != "u-1" {
		t.Fatalf("expected authenticated request, got %d %q", rr.Code, rr.Body.String())
	}
	if rr := serve(router, "/me", "bearer customer-token"); rr.Code != http.StatusOK {
		t.Fatalf("expected scheme to be case insensitive, got %d", rr.Code)
	}

	for name, header := range map[string]string{
		"missing":       "",
		"wrong scheme":  "Basic customer-token",
		"no token":      "Bearer ",
		"unknown token": "Bearer nope",
	} {
		rr := serve(router, "/me", header)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rr.Code)
		}
		if rr.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Fatalf("%s: expected WWW-Authenticate header", name)
		}
	}
}

func TestRequireAuthMapsResolverErrors(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
	}{
		"expired":  {usecase.ErrTokenExpired, http.StatusUnauthorized},
		"inactive": {usecase.ErrInvalidCredentials, http.StatusUnauthorized},
		"gone":     {usecase.ErrUserNotFound, http.StatusUnauthorized},
		"database": {errors.New("connection refused"), http.StatusInternalServerError},
	}
	for name, tc := range cases {
		router := newAuthRouter(fakeResolver{err: tc.err})
		if rr := serve(router, "/me", "Bearer x"); rr.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", name, tc.status, rr.Code)
		}
	}
}

func TestRequireAdmin(t *testing.T) {
	resolver := fakeResolver{users: map[string]domain.User{
		"customer-token": {ID: "u-1"},
		"admin-token":    {ID: "u-2", IsSuperuser: true},
	}}
	router := newAuthRouter(resolver)

	if rr := serve(router, "/admin", "Bearer customer-token"); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a customer, got %d", rr.Code)
	}
	if rr := serve(router, "/admin", "Bearer admin-token"); rr.Code != http.StatusNoContent {
		t.Fatalf("expected admin to pass, got %d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORS([]string{"https://shop.example.com"}))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://shop.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected unknown origin to get no CORS header, got %q", got)
	}
}
