package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kithnet/server-core/internal/managers"
	"github.com/kithnet/server-core/internal/schemas"
	"github.com/kithnet/server-core/internal/utils"
)

// AuthTokenCookie is the session cookie name.
const AuthTokenCookie = "authToken"

var errUnauthorized = errors.New("unauthorized")

// ExtractToken pulls the bearer token from the session cookie or, as a
// fallback, the Authorization header.
func ExtractToken(c *gin.Context) string {
	if token, err := c.Cookie(AuthTokenCookie); err == nil && token != "" {
		return token
	}

	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}

	return ""
}

// RequireAuth enforces a live session: cryptographically valid token plus a
// matching valid ledger row. Failures short-circuit with 401.
func RequireAuth(sessionMgr managers.SessionMgr) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			utils.WriteAndLogError(c, schemas.Unauthorized, http.StatusUnauthorized, errUnauthorized)
			c.Abort()
			return
		}

		claims, err := sessionMgr.Validate(c, token)
		if err != nil {
			utils.WriteAndLogError(c, schemas.Unauthorized, http.StatusUnauthorized, err)
			c.Abort()
			return
		}

		c.Set(utils.ClaimsKey.String(), claims)
		c.Next()
	}
}

// OptionalAuth attaches session claims when a live session is presented and
// passes through anonymously otherwise. Handlers downstream decide between the
// public and the personalized view.
func OptionalAuth(sessionMgr managers.SessionMgr) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := ExtractToken(c); token != "" {
			if claims, err := sessionMgr.Validate(c, token); err == nil {
				c.Set(utils.ClaimsKey.String(), claims)
			}
		}
		c.Next()
	}
}

// DecodeLoose is used only on the login route: it detects a still-live session
// without ever rejecting the request, so the handler can extend the existing
// session instead of issuing a new one.
func DecodeLoose(sessionMgr managers.SessionMgr) gin.HandlerFunc {
	return OptionalAuth(sessionMgr)
}

// RequireRole fails closed: no session or no membership means 403, never a
// silent pass. Must run behind RequireAuth.
func RequireRole(roleMgr managers.RoleMgr, databaseMgr managers.DatabaseMgr, roleName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			utils.WriteAndLogError(c, schemas.Unauthorized, http.StatusUnauthorized, errUnauthorized)
			c.Abort()
			return
		}

		isMember, err := roleMgr.HasRole(c, databaseMgr.GetPool(), claims.UserID, roleName)
		if err != nil {
			utils.WriteAndLogError(c, schemas.DatabaseError, http.StatusInternalServerError, err)
			c.Abort()
			return
		}

		if !isMember {
			utils.WriteAndLogError(c, schemas.Forbidden, http.StatusForbidden, errUnauthorized)
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetClaims returns the verified session claims attached by the auth middlewares.
func GetClaims(c *gin.Context) (*schemas.SessionClaims, bool) {
	value, exists := c.Get(utils.ClaimsKey.String())
	if !exists {
		return nil, false
	}

	claims, ok := value.(*schemas.SessionClaims)
	return claims, ok
}
