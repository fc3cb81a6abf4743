package db

import (
  "fmt"

  "gorm.io/driver/postgres"
  "gorm.io/gorm"
  gormlogger "gorm.io/gorm/logger"

  "github.com/kaar-org/kaar-backend/internal/logger"
  "github.com/kaar-org/kaar-backend/internal/types"
  "github.com/kaar-org/kaar-backend/internal/utils"
)

type PostgresService struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
  serviceLog := log.With("service", "PostgresService")

  //1) Get and Set Environment Variables
  serviceLog.Info("Attempting to load environment variables for Postgres now...")
  postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", serviceLog)
  postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", serviceLog)
  postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", serviceLog)
  postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", serviceLog)
  postgresName := utils.GetEnv("POSTGRES_NAME", "kaar", serviceLog)
  postgresSSLMode := utils.GetEnv("POSTGRES_SSLMODE", "disable", serviceLog)
  serviceLog.Debug("Environment variables loaded for Postgres",
    "host", postgresHost,
    "port", postgresPort,
    "user", postgresUser,
    "dbname", postgresName,
    "sslmode", postgresSSLMode,
  )

  //2) Construct DSN From Environment Variables
  dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName, postgresSSLMode)

  //3) Attempt DB Connection
  serviceLog.Info("Attempting to connect to Postgres DB now...")
  db, err := Open(postgres.Open(dsn))
  if err != nil {
    serviceLog.Error("Failed to connect to Postgres DB", "error", err)
    return nil, fmt.Errorf("failed to connect to Postgres DB: %w", err)
  }
  serviceLog.Info("Successfully Connected to Postgres DB :)")

  return &PostgresService{db: db, log: serviceLog}, nil
}

// Open applies the gorm settings shared by every dialect we run against.
// TranslateError turns unique violations into gorm.ErrDuplicatedKey.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
  return gorm.Open(dialector, &gorm.Config{
    TranslateError: true,
    Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
  })
}

// AutoMigrate creates or updates the user and chat tables.
func AutoMigrate(db *gorm.DB) error {
  return db.AutoMigrate(
    &types.User{},
    &types.Chat{},
  )
}

func (s *PostgresService) AutoMigrateAll() error {
  s.log.Info("Starting AutoMigrateAll for all GORM models now...")
  if err := AutoMigrate(s.db); err != nil {
    s.log.Error("AutoMigrateAll failed :(", "error", err)
    return err
  }
  s.log.Info("AutoMigrateAll completed successfully :)")
  return nil
}

func (s *PostgresService) DB() *gorm.DB {
  return s.db
}

func (s *PostgresService) Close() error {
  sqlDB, err := s.db.DB()
  if err != nil {
    return err
  }
  return sqlDB.Close()
}
