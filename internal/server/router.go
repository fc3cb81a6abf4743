package server

import (
  "net/http"
  "time"

  "github.com/gin-contrib/cors"
  "github.com/gin-gonic/gin"

  "github.com/kaar-org/kaar-backend/internal/handlers"
  "github.com/kaar-org/kaar-backend/internal/middleware"
)

type RouterConfig struct {
  AuthHandler           *handlers.AuthHandler
  AuthMiddleware        *middleware.AuthMiddleware
  ChatHandler           *handlers.ChatHandler
  UploadHandler         *handlers.UploadHandler
  WsHandler             gin.HandlerFunc
  AllowedOrigins        []string
  MaxUploadBytes        int64
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.Default()
  router.MaxMultipartMemory = 8 << 20

  //-----------------------------------------
  // Cors Setup
  //-----------------------------------------
  corsConfig := cors.Config{
    AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
    AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
    ExposeHeaders:    []string{"Content-Disposition"},
    AllowCredentials: true,
    MaxAge:           12 * time.Hour,
  }
  if len(cfg.AllowedOrigins) == 0 {
    corsConfig.AllowAllOrigins = true
    corsConfig.AllowCredentials = false
  } else {
    corsConfig.AllowOrigins = cfg.AllowedOrigins
  }
  router.Use(cors.New(corsConfig))

  //-----------------------------------------
  // Health Routes
  //-----------------------------------------
  router.GET("/healthz", handlers.Healthz)

  //-----------------------------------------
  // Public Routes
  //-----------------------------------------
  api := router.Group("/api")
  user := api.Group("/user")
  {
    user.POST("/register", cfg.AuthHandler.Register)
    user.POST("/login", cfg.AuthHandler.Login)
    user.POST("/logout", cfg.AuthHandler.Logout)
  }

  //------------------------------------------
  // Protected Routes
  //------------------------------------------
  protected := api.Group("/")
  protected.Use(cfg.AuthMiddleware.RequireAuth())
  protected.GET("/ws", cfg.WsHandler)

  //Chat
  chat := protected.Group("/chat")
  chat.POST("/create", cfg.ChatHandler.CreateChat)
  chat.POST("/upload", limitBody(cfg.MaxUploadBytes), cfg.ChatHandler.UploadForChat)
  chat.POST("/message/:chatId", cfg.ChatHandler.SendMessage)
  chat.GET("/session/:chatId", cfg.ChatHandler.GetSession)
  chat.POST("/session/:chatId/messages", cfg.ChatHandler.AddMessage)
  chat.GET("/history/:userId", cfg.AuthMiddleware.RequireSelf("userId"), cfg.ChatHandler.GetHistory)
  chat.GET("/user/:userId", cfg.AuthMiddleware.RequireSelf("userId"), cfg.ChatHandler.GetUserChats)

  //Upload
  upload := protected.Group("/upload")
  upload.POST("/file", limitBody(cfg.MaxUploadBytes), cfg.UploadHandler.UploadFile)
  upload.POST("/aiupload", limitBody(cfg.MaxUploadBytes), cfg.UploadHandler.UploadForAI)
  upload.GET("/userfiles", cfg.UploadHandler.ListUserFiles)
  upload.GET("/aifiles", cfg.UploadHandler.ListAIFiles)
  upload.GET("/getfile", cfg.UploadHandler.GetFile)
  upload.DELETE("/deletefile", cfg.UploadHandler.DeleteFile)
  upload.POST("/ask", cfg.UploadHandler.Ask)
  upload.POST("/conversation", cfg.UploadHandler.Conversation)
  upload.POST("/deletesource", cfg.UploadHandler.DeleteSource)

  return router
}

// limitBody caps request bodies at max bytes; zero means no cap.
func limitBody(max int64) gin.HandlerFunc {
  return func(c *gin.Context) {
    if max > 0 {
      if c.Request.ContentLength > max {
        c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
        return
      }
      c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
    }
    c.Next()
  }
}
