package services

import (
  "context"
  "fmt"
  "time"

  "github.com/golang-jwt/jwt/v5"
  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/kaar-org/kaar-backend/internal/apperror"
  "github.com/kaar-org/kaar-backend/internal/logger"
  "github.com/kaar-org/kaar-backend/internal/normalization"
  "github.com/kaar-org/kaar-backend/internal/repos"
  "github.com/kaar-org/kaar-backend/internal/requestdata"
  "github.com/kaar-org/kaar-backend/internal/types"
  "github.com/kaar-org/kaar-backend/internal/utils"
)

type JWTClaims struct {
  jwt.RegisteredClaims
  Username    string      `json:"username"`
  Email       string      `json:"email"`
}

type AuthService interface {
  Register(ctx context.Context, username, email, password string) (string, error)
  Authenticate(ctx context.Context, username, password string) (*types.User, error)
  Login(ctx context.Context, username, password string) (*types.User, string, error)
  Logout(ctx context.Context, tokenString string) error

  IssueToken(username, email string) (string, time.Time, error)
  ParseToken(tokenString string) (*JWTClaims, error)
  SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)

  GetAccessTTL() time.Duration
}

type authService struct {
  db                *gorm.DB
  log               *logger.Logger
  userRepo          repos.UserRepo
  blacklist         TokenBlacklist
  jwtSecretKey      string
  accessTTL         time.Duration
}

func NewAuthService(
  db                *gorm.DB,
  log               *logger.Logger,
  userRepo          repos.UserRepo,
  blacklist         TokenBlacklist,
  jwtSecretKey      string,
  accessTTL         time.Duration,
) AuthService {
  serviceLog := log.With("service", "AuthService")
  return &authService{
    db:             db,
    log:            serviceLog,
    userRepo:       userRepo,
    blacklist:      blacklist,
    jwtSecretKey:   jwtSecretKey,
    accessTTL:      accessTTL,
  }
}

//----------------------------------------------------------------------------------------------------------------------
// Register, Authenticate, Login, Logout
//----------------------------------------------------------------------------------------------------------------------

func (as *authService) Register(ctx context.Context, rawUsername, rawEmail, rawPassword string) (string, error) {
  as.log.Info("Starting Register User now...")
  //1) Normalize Fields
  username, email, password := utils.NormalizeRegistration(rawUsername, rawEmail, rawPassword)

  //2) Checks on user fields
  if vErr := utils.RegisterInputValidation(ctx, as.log, username, email, password); vErr != nil {
    return "", vErr
  }

  //3) Hash Password
  hash, hErr := utils.HashPassword(ctx, as.log, password)
  if hErr != nil {
    return "", apperror.Internal(hErr, "failed to register user")
  }

  //4) Existence checks and insert. The unique constraints on id and email catch
  //   anything that slips between the reads and the write.
  err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    usernameTaken, uErr := as.userRepo.UsernameExists(ctx, tx, username)
    if uErr != nil {
      as.log.Warn("Failed to check if username exists. Returning error.", "error", uErr)
      return apperror.Internal(uErr, "failed checking username existence")
    }
    emailTaken, eErr := as.userRepo.EmailExists(ctx, tx, email)
    if eErr != nil {
      as.log.Warn("Failed to check if email exists. Returning error.", "error", eErr)
      return apperror.Internal(eErr, "failed checking email existence")
    }
    if usernameTaken || emailTaken {
      as.log.Warn("Username or email already in use, cannot continue.", "username", username)
      return apperror.BadRequest("username or email already exists")
    }
    user := &types.User{
      ID:           username,
      Username:     username,
      Email:        email,
      PasswordHash: hash,
      CreatedAt:    time.Now().UTC(),
    }
    if _, cErr := as.userRepo.Create(ctx, tx, []*types.User{user}); cErr != nil {
      as.log.Warn("Failure from AuthService -> UserRepo to create user", "error", cErr)
      if apperror.KindOf(cErr) == apperror.KindBadRequest {
        return cErr
      }
      return apperror.Internal(cErr, "failed to create user")
    }
    return nil
  })
  if err != nil {
    return "", err
  }

  //5) Token for the new account
  token, _, tErr := as.IssueToken(username, email)
  if tErr != nil {
    return "", apperror.Internal(tErr, "failed to issue token")
  }
  as.log.Info("Registered user", "username", username)
  return token, nil
}

// Authenticate returns nil, nil for an unknown user or a wrong password so the
// caller cannot tell the two apart.
func (as *authService) Authenticate(ctx context.Context, rawUsername, rawPassword string) (*types.User, error) {
  username := normalization.TrimInput(rawUsername)
  users, err := as.userRepo.GetByIDs(ctx, nil, []string{username})
  if err != nil {
    as.log.Warn("Failure to retrieve user by username. Returning error.", "error", err)
    return nil, apperror.Internal(err, "error retrieving user")
  }
  if len(users) == 0 {
    as.log.Debug("No user with that username", "username", username)
    return nil, nil
  }
  if !utils.CheckPassword(users[0].PasswordHash, rawPassword) {
    as.log.Debug("Password mismatch", "username", username)
    return nil, nil
  }
  return users[0], nil
}

func (as *authService) Login(ctx context.Context, username, password string) (*types.User, string, error) {
  if vErr := utils.LoginInputValidation(ctx, as.log, normalization.TrimInput(username), password); vErr != nil {
    return nil, "", vErr
  }
  user, err := as.Authenticate(ctx, username, password)
  if err != nil {
    return nil, "", err
  }
  if user == nil {
    return nil, "", apperror.Unauthorized("invalid credentials")
  }
  token, _, tErr := as.IssueToken(user.Username, user.Email)
  if tErr != nil {
    return nil, "", apperror.Internal(tErr, "failed to issue token")
  }
  return user, token, nil
}

func (as *authService) Logout(ctx context.Context, tokenString string) error {
  if tokenString == "" {
    return apperror.BadRequest("invalid token")
  }
  claims, err := as.ParseToken(tokenString)
  if err != nil {
    as.log.Debug("Logout with unparsable token", "error", err)
    return apperror.BadRequest("invalid token")
  }
  ttl := time.Until(claims.ExpiresAt.Time)
  added, err := as.blacklist.Add(ctx, tokenString, ttl)
  if err != nil {
    return apperror.Internal(err, "failed to blacklist token")
  }
  if !added {
    return apperror.Unauthorized("token already blacklisted")
  }
  as.log.Info("User logged out", "username", claims.Username)
  return nil
}

//----------------------------------------------------------------------------------------------------------------------
// Tokens
//----------------------------------------------------------------------------------------------------------------------

func (as *authService) IssueToken(username, email string) (string, time.Time, error) {
  now := time.Now()
  expiresAt := now.Add(as.accessTTL)
  claims := JWTClaims{
    RegisteredClaims: jwt.RegisteredClaims{
      ID:        uuid.NewString(),
      Subject:   username,
      ExpiresAt: jwt.NewNumericDate(expiresAt),
      IssuedAt:  jwt.NewNumericDate(now),
    },
    Username: username,
    Email:    email,
  }
  token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
  signed, err := token.SignedString([]byte(as.jwtSecretKey))
  if err != nil {
    as.log.Warn("Failed to sign token", "error", err)
    return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
  }
  return signed, expiresAt, nil
}

func (as *authService) ParseToken(tokenString string) (*JWTClaims, error) {
  parsedToken, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
    return []byte(as.jwtSecretKey), nil
  }, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
  if err != nil {
    return nil, apperror.Wrap(apperror.KindUnauthorized, err, "invalid or expired token")
  }
  claims, ok := parsedToken.Claims.(*JWTClaims)
  if !ok || !parsedToken.Valid || claims.Username == "" {
    return nil, apperror.Unauthorized("invalid or expired token")
  }
  return claims, nil
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
  if tokenString == "" {
    return ctx, apperror.Unauthorized("missing or invalid token")
  }
  claims, err := as.ParseToken(tokenString)
  if err != nil {
    return ctx, err
  }
  listed, err := as.blacklist.Contains(ctx, tokenString)
  if err != nil {
    return ctx, apperror.Internal(err, "failed to check token blacklist")
  }
  if listed {
    return ctx, apperror.Unauthorized("token has been revoked")
  }
  rd := &requestdata.RequestData{
    TokenString: tokenString,
    Username:    claims.Username,
    Email:       claims.Email,
    ExpiresAt:   claims.ExpiresAt.Time,
  }
  return requestdata.WithRequestData(ctx, rd), nil
}

func (as *authService) GetAccessTTL() time.Duration {
  return as.accessTTL
}
