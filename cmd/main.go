package main

import (
  "context"
  "errors"
  "fmt"
  "net/http"
  "os"
  "os/signal"
  "syscall"
  "time"

  "github.com/joho/godotenv"
  "github.com/spf13/cobra"

  "github.com/kaar-org/kaar-backend/internal/db"
  "github.com/kaar-org/kaar-backend/internal/handlers"
  "github.com/kaar-org/kaar-backend/internal/logger"
  "github.com/kaar-org/kaar-backend/internal/middleware"
  "github.com/kaar-org/kaar-backend/internal/repos"
  "github.com/kaar-org/kaar-backend/internal/server"
  "github.com/kaar-org/kaar-backend/internal/services"
  "github.com/kaar-org/kaar-backend/internal/socket"
  "github.com/kaar-org/kaar-backend/internal/utils"
)

const redisHubChannel = "kaar_hub_broadcast"

var envFile string

func main() {
  if err := rootCmd.Execute(); err != nil {
    fmt.Println(err)
    os.Exit(1)
  }
}

var rootCmd = &cobra.Command{
  Use:   "kaar",
  Short: "Document upload and chat backend",
  PersistentPreRun: func(cmd *cobra.Command, args []string) {
    loadEnv()
  },
  RunE: func(cmd *cobra.Command, args []string) error {
    return runServe()
  },
}

var serveCmd = &cobra.Command{
  Use:   "serve",
  Short: "Run the HTTP API",
  Args:  cobra.NoArgs,
  RunE: func(cmd *cobra.Command, args []string) error {
    return runServe()
  },
}

var migrateCmd = &cobra.Command{
  Use:   "migrate",
  Short: "Create or update the database tables and exit",
  Args:  cobra.NoArgs,
  RunE: func(cmd *cobra.Command, args []string) error {
    log, err := newLogger()
    if err != nil {
      return err
    }
    defer log.Sync()
    postgresService, err := db.NewPostgresService(log)
    if err != nil {
      return err
    }
    defer postgresService.Close()
    return postgresService.AutoMigrateAll()
  },
}

func init() {
  rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file; skipped when missing.")
  rootCmd.AddCommand(serveCmd, migrateCmd)
}

func loadEnv() {
  if err := godotenv.Load(envFile); err != nil {
    fmt.Printf("No %s file loaded, relying on environment variables\n", envFile)
  }
}

func newLogger() (*logger.Logger, error) {
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    return nil, fmt.Errorf("failed to init logger: %w", err)
  }
  return log, nil
}

func runServe() error {
  // Logger Setup
  log, err := newLogger()
  if err != nil {
    return err
  }
  defer log.Sync()

  // Environment Variables
  log.Info("Attempting to load environment variables for Main now...")
  jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "", log)
  accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
  redisAddress := utils.GetEnv("REDIS_ADDRESS", "localhost:6379", log)
  redisPassword := utils.GetEnv("REDIS_PASSWORD", "", log)
  gcsBucket := utils.GetEnv("GCS_BUCKET", "", log)
  gcsProjectID := utils.GetEnv("GCS_PROJECT_ID", "", log)
  gcsCredentialsFile := utils.GetEnv("GCS_CREDENTIALS_FILE", "", log)
  chatPDFAPIKey := utils.GetEnv("CHATPDF_API_KEY", "", log)
  chatPDFBaseURL := utils.GetEnv("CHATPDF_BASE_URL", services.DefaultChatPDFBaseURL, log)
  chatPDFTimeout := utils.GetEnvAsInt("CHATPDF_TIMEOUT_SECONDS", 60, log)
  allowedOrigins := utils.GetEnvAsSlice("CORS_ALLOWED_ORIGINS", nil, log)
  maxUploadMB := utils.GetEnvAsInt("MAX_UPLOAD_MB", 25, log)
  port := utils.GetEnv("PORT", "8080", log)
  if jwtSecretKey == "" {
    return errors.New("JWT_SECRET_KEY must be set")
  }
  log.Debug("Environment variables loaded for Main :)",
    "accessTokenTTL", accessTokenTTL,
    "redisAddress", redisAddress,
    "gcsBucket", gcsBucket,
    "chatPDFBaseURL", chatPDFBaseURL,
    "allowedOrigins", allowedOrigins,
    "maxUploadMB", maxUploadMB,
  )

  // Postgres Setup
  log.Info("Setting Up Postgres from Main now...")
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    return err
  }
  defer postgresService.Close()
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Warn("Postgres auto migration failed", "error", err)
  }
  thePG := postgresService.DB()
  log.Info("Postgres Setup From Main Successful :)")

  // Repositories Setup
  userRepo := repos.NewUserRepo(thePG, log)
  chatRepo := repos.NewChatRepo(thePG, log)

  // Redis Setup
  log.Info("Setting Up Redis From Main Now...")
  var blacklist services.TokenBlacklist
  var redisPubSub *socket.RedisPubSub
  wsHub := socket.NewHub(log)
  redisClient, err := db.NewRedisClient(log, redisAddress, redisPassword)
  if err != nil {
    log.Warn("Redis unavailable; using in-memory token blacklist and local-only websocket fanout", "error", err)
    blacklist = services.NewMemoryBlacklist()
  } else {
    defer redisClient.Close()
    blacklist = services.NewRedisBlacklist(log, redisClient)
    redisPubSub = socket.NewRedisPubSub(log, redisClient, redisHubChannel)
    if err := redisPubSub.StartSubscriber(wsHub); err != nil {
      log.Warn("Failed to subscribe to Redis pub/sub", "error", err)
      redisPubSub = nil
    } else {
      wsHub.SetRedisPubSub(redisPubSub)
      log.Info("Redis pubsub is active!")
    }
  }

  // Services Setup
  log.Info("Setting up Services from Main now...")
  ctx := context.Background()
  bucketService, err := services.NewBucketService(ctx, log, services.BucketConfig{
    Bucket:          gcsBucket,
    ProjectID:       gcsProjectID,
    CredentialsFile: gcsCredentialsFile,
  })
  if err != nil {
    return fmt.Errorf("could not init BucketService: %w", err)
  }
  defer bucketService.Close()
  if err := bucketService.EnsureBucket(ctx); err != nil {
    log.Warn("Could not ensure bucket exists", "bucket", gcsBucket, "error", err)
  }
  inferenceService := services.NewChatPDFService(log, chatPDFBaseURL, chatPDFAPIKey, time.Duration(chatPDFTimeout)*time.Second)
  authService := services.NewAuthService(thePG, log, userRepo, blacklist, jwtSecretKey, time.Duration(accessTokenTTL)*time.Second)
  documentService := services.NewDocumentService(log, bucketService, inferenceService)
  chatService := services.NewChatService(log, chatRepo, inferenceService, wsHub, socket.UserChannel)
  log.Info("Services Set Up From Main Successful :)")

  // Router Setup
  router := server.NewRouter(server.RouterConfig{
    AuthHandler:    handlers.NewAuthHandler(authService),
    AuthMiddleware: middleware.NewAuthMiddleware(log, authService),
    ChatHandler:    handlers.NewChatHandler(chatService, documentService),
    UploadHandler:  handlers.NewUploadHandler(documentService),
    WsHandler:      handlers.WsHandler(wsHub, handlers.NewUpgrader(allowedOrigins), log),
    AllowedOrigins: allowedOrigins,
    MaxUploadBytes: int64(maxUploadMB) << 20,
  })

  srv := &http.Server{
    Addr:              ":" + port,
    Handler:           router,
    ReadHeaderTimeout: 10 * time.Second,
  }
  serverErr := make(chan error, 1)
  go func() {
    log.Info("Server listening", "port", port)
    if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
      serverErr <- err
    }
    close(serverErr)
  }()

  quit := make(chan os.Signal, 1)
  signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
  select {
  case err := <-serverErr:
    if err != nil {
      log.Error("Server failed", "error", err)
      return err
    }
  case sig := <-quit:
    log.Info("Shutting down", "signal", sig.String())
  }

  // On Shutdown
  shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
  defer cancel()
  if err := srv.Shutdown(shutdownCtx); err != nil {
    log.Warn("Graceful shutdown failed", "error", err)
  }
  if redisPubSub != nil {
    redisPubSub.Stop()
  }
  return nil
}
