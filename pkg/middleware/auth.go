package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Lucca-Muniz/Chat/pkg/jwt"
	"github.com/Lucca-Muniz/Chat/pkg/response"
)

const (
	UserIDKey        = "user_id"
	UsernameKey      = "username"
	AuthHeaderKey    = "Authorization"
	BearerPrefix     = "Bearer "
	AccessTokenQuery = "access_token"

	// AnonymousUsername is the identity of connections without a token.
	AnonymousUsername = "Anonymous"
)

var ErrAuthRequired = errors.New("authentication required")

// TokenValidator validates access tokens.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// Identity is the caller identity resolved from a request.
type Identity struct {
	UserID        string
	Username      string
	Authenticated bool
}

// Anonymous returns the identity used when no token was presented.
func Anonymous() Identity {
	return Identity{Username: AnonymousUsername}
}

// AuthMiddleware resolves the caller identity from an access token. Tokens
// are read from the Authorization header or, for browser websocket clients
// that cannot set headers, the access_token query parameter.
type AuthMiddleware struct {
	validator TokenValidator
	required  bool
}

// NewAuthMiddleware creates a new auth middleware. validator may be nil, in
// which case every caller is anonymous.
func NewAuthMiddleware(validator TokenValidator, required bool) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		required:  required,
	}
}

// Identify resolves the identity of r. A request without a token is anonymous
// unless authentication is required; a request with a bad token is rejected.
func (m *AuthMiddleware) Identify(r *http.Request) (Identity, error) {
	token := tokenFromRequest(r)
	if token == "" || m.validator == nil {
		if m.required {
			return Identity{}, ErrAuthRequired
		}
		return Anonymous(), nil
	}

	claims, err := m.validator.ValidateToken(token)
	if err != nil {
		return Identity{}, err
	}

	username := claims.DisplayName()
	if username == "" {
		username = AnonymousUsername
	}
	return Identity{
		UserID:        claims.UserID,
		Username:      username,
		Authenticated: true,
	}, nil
}

// RequireAuth returns a Gin middleware that stores the caller identity in the
// context or aborts with 401.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := m.Identify(c.Request)
		if err != nil {
			response.Unauthorized(c, err.Error())
			return
		}

		c.Set(UserIDKey, id.UserID)
		c.Set(UsernameKey, id.Username)

		c.Next()
	}
}

// GetUserID extracts user ID from Gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetUsername extracts username from Gin context.
func GetUsername(c *gin.Context) string {
	return c.GetString(UsernameKey)
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get(AuthHeaderKey); strings.HasPrefix(h, BearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, BearerPrefix))
	}
	return r.URL.Query().Get(AccessTokenQuery)
}
