package repos

import (
    "context"
    "errors"

    "gorm.io/gorm"

    "github.com/kaar-org/kaar-backend/internal/apperror"
    "github.com/kaar-org/kaar-backend/internal/logger"
    "github.com/kaar-org/kaar-backend/internal/types"
)

// ChatRepo treats each chat as a single document partitioned by its id.
type ChatRepo interface {
    Create(ctx context.Context, tx *gorm.DB, chat *types.Chat) (*types.Chat, error)
    GetByID(ctx context.Context, tx *gorm.DB, chatID string) (*types.Chat, error)
    GetByUserID(ctx context.Context, tx *gorm.DB, userID string) ([]*types.Chat, error)
    Upsert(ctx context.Context, tx *gorm.DB, chat *types.Chat) (*types.Chat, error)
}

type chatRepo struct {
    db      *gorm.DB
    log     *logger.Logger
}

func NewChatRepo(db *gorm.DB, baseLog *logger.Logger) ChatRepo {
    return &chatRepo{
        db:     db,
        log:    baseLog.With("repo", "ChatRepo"),
    }
}

func (cr *chatRepo) Create(ctx context.Context, tx *gorm.DB, chat *types.Chat) (*types.Chat, error) {
    if tx == nil {
        tx = cr.db
    }
    if err := tx.WithContext(ctx).Create(chat).Error; err != nil {
        cr.log.Error("failed to create chat", "chatID", chat.ID, "error", err)
        return nil, err
    }
    cr.log.Debug("created chat", "chatID", chat.ID, "userID", chat.UserID)
    return chat, nil
}

func (cr *chatRepo) GetByID(ctx context.Context, tx *gorm.DB, chatID string) (*types.Chat, error) {
    if tx == nil {
        tx = cr.db
    }
    var chat types.Chat
    if err := tx.WithContext(ctx).
        Where("id = ?", chatID).
        First(&chat).Error; err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            return nil, apperror.NotFound("chat with ID %s not found", chatID)
        }
        cr.log.Error("failed to get chat by id", "chatID", chatID, "error", err)
        return nil, err
    }
    return &chat, nil
}

func (cr *chatRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID string) ([]*types.Chat, error) {
    if tx == nil {
        tx = cr.db
    }
    var chats []*types.Chat
    if err := tx.WithContext(ctx).
        Where("user_id = ?", userID).
        Find(&chats).Error; err != nil {
        cr.log.Error("failed to get chats by userID", "userID", userID, "error", err)
        return nil, err
    }
    return chats, nil
}

// Upsert writes the whole document, inserting it if the id is new.
func (cr *chatRepo) Upsert(ctx context.Context, tx *gorm.DB, chat *types.Chat) (*types.Chat, error) {
    if tx == nil {
        tx = cr.db
    }
    if err := tx.WithContext(ctx).Save(chat).Error; err != nil {
        cr.log.Error("failed to upsert chat", "chatID", chat.ID, "error", err)
        return nil, err
    }
    return chat, nil
}
