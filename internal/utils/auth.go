package utils

import (
  "context"
  "fmt"
  "strings"

  "golang.org/x/crypto/bcrypt"

  "github.com/kaar-org/kaar-backend/internal/apperror"
  "github.com/kaar-org/kaar-backend/internal/logger"
  "github.com/kaar-org/kaar-backend/internal/normalization"
)

func RegisterInputValidation(ctx context.Context, log *logger.Logger, username, email, password string) error {
  //1) Check Username
  if username == "" {
    log.Warn("Username is empty, cannot proceed further. Returning error")
    return apperror.BadRequest("a username is required to register")
  }
  if strings.ContainsAny(username, "/\\ ") {
    log.Warn("Username contains path or whitespace characters. Returning error", "username", username)
    return apperror.BadRequest("username may not contain spaces or slashes")
  }

  //2) Check Email
  if email == "" {
    log.Warn("Email is empty, cannot proceed further. Returning error")
    return apperror.BadRequest("an email is required to register")
  }
  if !strings.Contains(email, "@") {
    log.Warn("Email is malformed. Returning error", "email", email)
    return apperror.BadRequest("email '%s' is not a valid address", email)
  }

  //3) Check Password
  if password == "" {
    log.Warn("Password is empty, cannot proceed further. Returning error")
    return apperror.BadRequest("a password is required to register")
  }
  return nil
}

func LoginInputValidation(ctx context.Context, log *logger.Logger, username, password string) error {
  if username == "" || password == "" {
    log.Warn("Username or password is an empty string, Cannot proceed.")
    return apperror.BadRequest("username and password are required")
  }
  return nil
}

func HashPassword(ctx context.Context, log *logger.Logger, password string) (string, error) {
  hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
  if err != nil {
    log.Warn("Failure to hash password for user. Returning error", "error", err)
    return "", fmt.Errorf("failed to hash password for user: %w", err)
  }
  return string(hashedPassword), nil
}

func CheckPassword(hash, password string) bool {
  return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NormalizeRegistration trims the username and folds the email to lower case.
// The password is hashed exactly as entered.
func NormalizeRegistration(username, email, password string) (string, string, string) {
  return normalization.TrimInput(username), normalization.ParseInputString(email), password
}
