package repos

import (
    "context"
    "errors"

    "gorm.io/gorm"

    "github.com/kaar-org/kaar-backend/internal/apperror"
    "github.com/kaar-org/kaar-backend/internal/logger"
    "github.com/kaar-org/kaar-backend/internal/types"
)

type UserRepo interface {
    // CREATE
    Create(ctx context.Context, tx *gorm.DB, users []*types.User) ([]*types.User, error)

    // READ
    GetByIDs(ctx context.Context, tx *gorm.DB, userIDs []string) ([]*types.User, error)
    GetByEmails(ctx context.Context, tx *gorm.DB, emails []string) ([]*types.User, error)
    UsernameExists(ctx context.Context, tx *gorm.DB, username string) (bool, error)
    EmailExists(ctx context.Context, tx *gorm.DB, email string) (bool, error)
}

type userRepo struct {
    db      *gorm.DB
    log     *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
    repoLog := baseLog.With("repo", "UserRepo")
    return &userRepo{db: db, log: repoLog}
}

//------------------------------------------------------------------------------
// CREATE
//------------------------------------------------------------------------------

func (ur *userRepo) Create(ctx context.Context, tx *gorm.DB, users []*types.User) ([]*types.User, error) {
    ur.log.Info("Starting Create Users now...")

    // 1) Transaction check
    transaction := tx
    if transaction == nil {
        transaction = ur.db
        ur.log.Debug("Transaction is nil, using ur.db")
    }

    // 2) If no users, skip
    if len(users) == 0 {
        ur.log.Debug("No users provided, returning empty slice")
        return []*types.User{}, nil
    }

    // 3) Create. A duplicate key here means another registration won the race.
    if err := transaction.WithContext(ctx).Create(&users).Error; err != nil {
        if errors.Is(err, gorm.ErrDuplicatedKey) {
            ur.log.Warn("Duplicate user on insert", "error", err)
            return nil, apperror.BadRequest("username or email already exists")
        }
        ur.log.Error("Failed to create users", "error", err)
        return nil, err
    }
    ur.log.Info("Successfully created users", "count", len(users))
    return users, nil
}

//------------------------------------------------------------------------------
// READ
//------------------------------------------------------------------------------

func (ur *userRepo) GetByIDs(ctx context.Context, tx *gorm.DB, userIDs []string) ([]*types.User, error) {
    transaction := tx
    if transaction == nil {
        transaction = ur.db
    }

    var results []*types.User
    if len(userIDs) == 0 {
        ur.log.Debug("No userIDs provided, returning empty slice")
        return results, nil
    }
    if err := transaction.WithContext(ctx).
        Where("id IN ?", userIDs).
        Find(&results).Error; err != nil {
        ur.log.Error("Failed to fetch users by IDs", "error", err)
        return nil, err
    }
    ur.log.Debug("Fetched users by IDs", "count", len(results))
    return results, nil
}

func (ur *userRepo) GetByEmails(ctx context.Context, tx *gorm.DB, emails []string) ([]*types.User, error) {
    transaction := tx
    if transaction == nil {
        transaction = ur.db
    }

    var results []*types.User
    if len(emails) == 0 {
        ur.log.Debug("No emails provided, returning empty slice")
        return results, nil
    }
    if err := transaction.WithContext(ctx).
        Where("email IN ?", emails).
        Find(&results).Error; err != nil {
        ur.log.Error("Failed to fetch users by emails", "error", err)
        return nil, err
    }
    ur.log.Debug("Fetched users by emails", "count", len(results))
    return results, nil
}

func (ur *userRepo) UsernameExists(ctx context.Context, tx *gorm.DB, username string) (bool, error) {
    users, err := ur.GetByIDs(ctx, tx, []string{username})
    if err != nil {
        return false, err
    }
    return len(users) > 0, nil
}

func (ur *userRepo) EmailExists(ctx context.Context, tx *gorm.DB, email string) (bool, error) {
    users, err := ur.GetByEmails(ctx, tx, []string{email})
    if err != nil {
        return false, err
    }
    return len(users) > 0, nil
}
