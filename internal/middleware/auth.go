package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-notify/internal/handler"
	"github.com/jwalitptl/homecare-notify/internal/model"
)

const ContextAdmin = "admin"

// AuthMiddleware trusts admin sessions issued by the dashboard as HS256 JWTs.
type AuthMiddleware struct {
	secret     []byte
	cookieName string
}

func NewAuthMiddleware(secret, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret), cookieName: cookieName}
}

// Authenticate reads the token from the session cookie or a Bearer header and stores
// the admin in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" && m.cookieName != "" {
			token, _ = c.Cookie(m.cookieName)
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization"))
			return
		}

		claims, err := m.parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
			return
		}

		c.Set(ContextAdmin, &model.Admin{
			ID:    claims.AdminID,
			Email: claims.Email,
			Name:  claims.Name,
		})
		c.Next()
	}
}

func (m *AuthMiddleware) parse(token string) (*model.AdminClaims, error) {
	if len(m.secret) == 0 {
		return nil, errors.New("jwt secret not configured")
	}
	claims := &model.AdminClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.AdminID == uuid.Nil {
		return nil, errors.New("token has no admin id")
	}
	return claims, nil
}

// AdminFrom returns the authenticated admin, or nil.
func AdminFrom(c *gin.Context) *model.Admin {
	v, ok := c.Get(ContextAdmin)
	if !ok {
		return nil
	}
	admin, _ := v.(*model.Admin)
	return admin
}

// CronSecret guards scheduler endpoints with a shared Bearer secret.
func CronSecret(secret string) gin.HandlerFunc {
	want := []byte(secret)
	return func(c *gin.Context) {
		got := []byte(bearerToken(c.GetHeader("Authorization")))
		if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
			return
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
