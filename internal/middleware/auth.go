package middleware

import (
  "net/http"
  "strings"

  "github.com/gin-gonic/gin"

  "github.com/kaar-org/kaar-backend/internal/apperror"
  "github.com/kaar-org/kaar-backend/internal/logger"
  "github.com/kaar-org/kaar-backend/internal/requestdata"
  "github.com/kaar-org/kaar-backend/internal/services"
)

type AuthMiddleware struct {
  log               *logger.Logger
  authService       services.AuthService
}

func NewAuthMiddleware(log *logger.Logger, authService services.AuthService) *AuthMiddleware {
  middlewareLogger := log.With("Middleware", "AuthMiddleware")
  return &AuthMiddleware{log: middlewareLogger, authService: authService}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
  return func(c *gin.Context) {
    tokenString := ExtractToken(c)
    if tokenString == "" {
      c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
      return
    }
    ctx, err := am.authService.SetContextFromToken(c.Request.Context(), tokenString)
    if err != nil {
      am.log.Debug("Rejected token", "path", c.FullPath(), "error", err)
      c.AbortWithStatusJSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
      return
    }
    c.Request = c.Request.WithContext(ctx)
    rd := requestdata.GetRequestData(ctx)
    if rd == nil || rd.Username == "" {
      c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden - invalid user id"})
      return
    }
    c.Next()
  }
}

// RequireSelf only lets the request through when the named path parameter equals
// the authenticated username. Runs after RequireAuth.
func (am *AuthMiddleware) RequireSelf(param string) gin.HandlerFunc {
  return func(c *gin.Context) {
    rd := requestdata.GetRequestData(c.Request.Context())
    if rd == nil {
      c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "request data missing"})
      return
    }
    if c.Param(param) != rd.Username {
      am.log.Warn("Identity mismatch", "param", param, "value", c.Param(param), "username", rd.Username)
      c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden - cannot access another user's data"})
      return
    }
    c.Next()
  }
}

// ExtractToken reads a bearer token from the Authorization header, falling back to
// the token query parameter that browser websocket clients have to use.
func ExtractToken(c *gin.Context) string {
  authHeader := c.GetHeader("Authorization")
  if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
    return strings.TrimSpace(authHeader[7:])
  }
  if qToken := c.Query("token"); qToken != "" {
    return qToken
  }
  return ""
}
