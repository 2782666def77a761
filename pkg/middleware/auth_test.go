package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/Lucca-Muniz/Chat/pkg/jwt"
)

func newManager(t *testing.T) *jwt.Manager {
	t.Helper()
	m, err := jwt.NewManager(jwt.Config{Secret: "middleware-test-secret-0123456789", TTL: time.Minute})
	require.NoError(t, err)
	return m
}

func TestIdentify(t *testing.T) {
	req := require.New(t)
	m := newManager(t)
	token, err := m.GenerateToken("7", "alice")
	req.NoError(err)

	mw := NewAuthMiddleware(m, false)

	r := httptest.NewRequest(http.MethodGet, "/chat/ws?access_token="+token, nil)
	id, err := mw.Identify(r)
	req.NoError(err)
	req.Equal(Identity{UserID: "7", Username: "alice", Authenticated: true}, id)

	r = httptest.NewRequest(http.MethodGet, "/api", nil)
	r.Header.Set(AuthHeaderKey, BearerPrefix+token)
	id, err = mw.Identify(r)
	req.NoError(err)
	req.Equal("alice", id.Username)

	id, err = mw.Identify(httptest.NewRequest(http.MethodGet, "/chat/ws", nil))
	req.NoError(err)
	req.Equal(Anonymous(), id)

	_, err = mw.Identify(httptest.NewRequest(http.MethodGet, "/chat/ws?access_token=garbage", nil))
	req.ErrorIs(err, jwt.ErrInvalidToken)
}

func TestIdentify_Required(t *testing.T) {
	mw := NewAuthMiddleware(newManager(t), true)
	_, err := mw.Identify(httptest.NewRequest(http.MethodGet, "/chat/ws", nil))
	require.ErrorIs(t, err, ErrAuthRequired)
}

func TestRequireAuth_Gin(t *testing.T) {
	req := require.New(t)
	gin.SetMode(gin.TestMode)
	m := newManager(t)

	r := gin.New()
	r.GET("/me", NewAuthMiddleware(m, true).RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, GetUsername(c)+":"+GetUserID(c))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	req.Equal(http.StatusUnauthorized, rec.Code)

	token, err := m.GenerateToken("9", "bob")
	req.NoError(err)
	rec = httptest.NewRecorder()
	httpReq := httptest.NewRequest(http.MethodGet, "/me", nil)
	httpReq.Header.Set(AuthHeaderKey, BearerPrefix+token)
	r.ServeHTTP(rec, httpReq)
	req.Equal(http.StatusOK, rec.Code)
	req.Equal("bob:9", rec.Body.String())
}
