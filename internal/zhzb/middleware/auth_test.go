package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"

	"github.com/Jonas0119/zhzb/internal/zhzb/models"
)

type staticUsers map[int64]*models.User

func (s staticUsers) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := s[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func newJWT(users staticUsers) *JWTConfig {
	return &JWTConfig{SecretKey: "test-secret", TTL: time.Hour, Users: users}
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	id, _ := GetUserID(r.Context())
	w.Header().Set("X-User", GetRole(r.Context()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte{byte('0' + id)})
}

func TestGenerateAndParseToken(t *testing.T) {
	cfg := newJWT(nil)
	token, err := cfg.GenerateToken(&models.User{ID: 7, Username: "alice", Role: models.RoleUser})
	require.NoError(t, err)

	claims, err := cfg.ParseToken(token)
	require.NoError(t, err)
	require.EqualValues(t, 7, claims.UserID)
	require.Equal(t, "alice", claims.Subject)

	other := &JWTConfig{SecretKey: "other"}
	_, err = other.ParseToken(token)
	require.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	cfg := newJWT(nil)
	claims := JWTClaims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.SecretKey))
	require.NoError(t, err)

	_, err = cfg.ParseToken(token)
	require.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	users := staticUsers{
		1: {ID: 1, Username: "alice", Role: models.RoleUser},
		2: {ID: 2, Username: "root", Role: models.RoleAdmin},
	}
	cfg := newJWT(users)
	h := AuthMiddleware(cfg)(http.HandlerFunc(echoUser))

	token, err := cfg.GenerateToken(users[1])
	require.NoError(t, err)

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "1", rec.Body.String())
		require.Equal(t, models.RoleUser, rec.Header().Get("X-User"))
	})

	t.Run("cookie", func(t *testing.T) {
		cookieRec := httptest.NewRecorder()
		cfg.SetAuthCookie(cookieRec, token)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		for _, c := range cookieRec.Result().Cookies() {
			req.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Body.String(), `"code":"unauthorized"`)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("deleted user", func(t *testing.T) {
		ghost, err := cfg.GenerateToken(&models.User{ID: 9, Role: models.RoleAdmin})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+ghost)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireAdminUsesStoredRole(t *testing.T) {
	users := staticUsers{1: {ID: 1, Username: "alice", Role: models.RoleAdmin}}
	cfg := newJWT(users)
	h := AuthMiddleware(cfg)(RequireAdmin(http.HandlerFunc(echoUser)))

	token, err := cfg.GenerateToken(users[1])
	require.NoError(t, err)
	call := func() int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, call())

	// demoted after the token was issued
	users[1].Role = models.RoleUser
	require.Equal(t, http.StatusForbidden, call())
}
