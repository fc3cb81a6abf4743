package handlers

import (
  "net/http"

  "github.com/gin-gonic/gin"

  "github.com/kaar-org/kaar-backend/internal/middleware"
  "github.com/kaar-org/kaar-backend/internal/services"
)

type AuthHandler struct {
  authService     services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
  return &AuthHandler{authService: authService}
}

func (ah *AuthHandler) Register(c *gin.Context) {
  var req struct {
    Username        string              `json:"username"`
    Email           string              `json:"email"`
    Password        string              `json:"password"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return
  }
  token, err := ah.authService.Register(c.Request.Context(), req.Username, req.Email, req.Password)
  if err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, gin.H{
    "message":    "User registered successfully",
    "token":      token,
    "expires_in": int(ah.authService.GetAccessTTL().Seconds()),
  })
}

func (ah *AuthHandler) Login(c *gin.Context) {
  var req struct {
    Username        string          `json:"username"`
    Password        string          `json:"password"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return
  }
  user, token, err := ah.authService.Login(c.Request.Context(), req.Username, req.Password)
  if err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, gin.H{
    "username":   user.Username,
    "email":      user.Email,
    "token":      token,
    "expires_in": int(ah.authService.GetAccessTTL().Seconds()),
  })
}

// Logout reads the bearer itself: a revoked token must reach the service so a
// second logout can be told apart from a bad one.
func (ah *AuthHandler) Logout(c *gin.Context) {
  token := middleware.ExtractToken(c)
  if err := ah.authService.Logout(c.Request.Context(), token); err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}
