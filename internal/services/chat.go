package services

import (
  "context"
  "sort"
  "time"

  "github.com/google/uuid"

  "github.com/kaar-org/kaar-backend/internal/apperror"
  "github.com/kaar-org/kaar-backend/internal/logger"
  "github.com/kaar-org/kaar-backend/internal/normalization"
  "github.com/kaar-org/kaar-backend/internal/repos"
  "github.com/kaar-org/kaar-backend/internal/types"
)

const EventChatUpdated = "chat_updated"

// EventPublisher pushes realtime events to a user's channel.
type EventPublisher interface {
  Publish(ctx context.Context, channel, event string, data interface{}) error
}

type ChatService interface {
  CreateChat(ctx context.Context, userID, documentName, blobURL, sourceID, initialMessage string) (*types.Chat, error)
  AddMessage(ctx context.Context, chatID, sender, content string) (*types.Chat, error)
  GetUserChats(ctx context.Context, userID string) ([]*types.Chat, error)
  GetChatByID(ctx context.Context, chatID string) (*types.Chat, error)
  ProcessTurn(ctx context.Context, chatID, userText string) (*types.Answer, *types.Chat, error)
  History(ctx context.Context, userID string) ([]types.ChatSummary, error)
}

type chatService struct {
  log               *logger.Logger
  chatRepo          repos.ChatRepo
  inference         InferenceService
  publisher         EventPublisher
  channelFor        func(userID string) string
  now               func() time.Time
}

// NewChatService wires the chat store to the inference backend. publisher may be nil.
func NewChatService(log *logger.Logger, chatRepo repos.ChatRepo, inference InferenceService, publisher EventPublisher, channelFor func(string) string) ChatService {
  serviceLog := log.With("service", "ChatService")
  if channelFor == nil {
    channelFor = func(userID string) string { return "user:" + userID }
  }
  return &chatService{
    log:        serviceLog,
    chatRepo:   chatRepo,
    inference:  inference,
    publisher:  publisher,
    channelFor: channelFor,
    now:        func() time.Time { return time.Now().UTC() },
  }
}

func (cs *chatService) CreateChat(ctx context.Context, userID, documentName, blobURL, sourceID, initialMessage string) (*types.Chat, error) {
  userID = normalization.TrimInput(userID)
  if userID == "" {
    return nil, apperror.BadRequest("userId is required")
  }
  now := cs.now()
  chat := &types.Chat{
    ID:           uuid.NewString(),
    UserID:       userID,
    DocumentName: documentName,
    BlobURL:      blobURL,
    SourceID:     sourceID,
    Messages:     []types.Message{},
    CreatedAt:    now,
    UpdatedAt:    now,
  }
  if initialMessage != "" {
    chat.Messages = append(chat.Messages, types.Message{Sender: types.SenderUser, Content: initialMessage, Timestamp: now})
  }
  if _, err := cs.chatRepo.Create(ctx, nil, chat); err != nil {
    cs.log.Warn("Failed to create chat", "userID", userID, "error", err)
    return nil, apperror.Internal(err, "failed to create chat")
  }
  cs.log.Info("Created chat", "chatID", chat.ID, "userID", userID)
  cs.notify(ctx, chat)
  return chat, nil
}

func (cs *chatService) AddMessage(ctx context.Context, chatID, sender, content string) (*types.Chat, error) {
  sender = normalization.ParseInputString(sender)
  if !types.ValidSender(sender) {
    return nil, apperror.BadRequest("sender must be %q or %q", types.SenderUser, types.SenderAI)
  }
  chat, err := cs.GetChatByID(ctx, chatID)
  if err != nil {
    return nil, err
  }
  chat.AppendMessage(types.Message{Sender: sender, Content: content, Timestamp: cs.now()})
  if err := cs.save(ctx, chat); err != nil {
    return nil, err
  }
  return chat, nil
}

// GetUserChats returns every chat of userID, most recently updated first.
func (cs *chatService) GetUserChats(ctx context.Context, userID string) ([]*types.Chat, error) {
  chats, err := cs.chatRepo.GetByUserID(ctx, nil, userID)
  if err != nil {
    cs.log.Warn("Failed to load user chats", "userID", userID, "error", err)
    return nil, apperror.Internal(err, "failed to retrieve chats")
  }
  for _, c := range chats {
    ensureMessages(c)
  }
  sort.SliceStable(chats, func(i, j int) bool {
    return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
  })
  if chats == nil {
    chats = []*types.Chat{}
  }
  return chats, nil
}

func (cs *chatService) GetChatByID(ctx context.Context, chatID string) (*types.Chat, error) {
  if normalization.TrimInput(chatID) == "" {
    return nil, apperror.BadRequest("chatId is required")
  }
  chat, err := cs.chatRepo.GetByID(ctx, nil, chatID)
  if err != nil {
    if apperror.IsNotFound(err) {
      return nil, err
    }
    cs.log.Warn("Failed to load chat", "chatID", chatID, "error", err)
    return nil, apperror.Internal(err, "failed to retrieve chat")
  }
  ensureMessages(chat)
  return chat, nil
}

// ProcessTurn records the user's question, asks the inference backend and records
// the answer. The two writes are separate: if the backend fails the question stays
// in the transcript without an answer.
func (cs *chatService) ProcessTurn(ctx context.Context, chatID, userText string) (*types.Answer, *types.Chat, error) {
  if normalization.TrimInput(userText) == "" {
    return nil, nil, apperror.BadRequest("message is required")
  }
  //1) Load
  chat, err := cs.GetChatByID(ctx, chatID)
  if err != nil {
    return nil, nil, err
  }
  if chat.SourceID == "" {
    return nil, nil, apperror.BadRequest("chat %s has no document source", chatID)
  }

  //2) Record question
  chat.AppendMessage(types.Message{Sender: types.SenderUser, Content: userText, Timestamp: cs.now()})
  if err := cs.save(ctx, chat); err != nil {
    return nil, nil, err
  }

  //3) Ask
  answer, err := cs.inference.Ask(ctx, chat.SourceID, userText, true)
  if err != nil {
    cs.log.Warn("Inference failed; question kept without answer", "chatID", chat.ID, "error", err)
    return nil, chat, apperror.Internal(err, "failed to process message")
  }

  //4) Record answer
  chat.AppendMessage(types.Message{Sender: types.SenderAI, Content: answer.Text, Timestamp: cs.now()})
  if err := cs.save(ctx, chat); err != nil {
    return nil, chat, err
  }
  return answer, chat, nil
}

func (cs *chatService) History(ctx context.Context, userID string) ([]types.ChatSummary, error) {
  chats, err := cs.GetUserChats(ctx, userID)
  if err != nil {
    return nil, err
  }
  summaries := make([]types.ChatSummary, 0, len(chats))
  for _, c := range chats {
    summaries = append(summaries, c.Summary())
  }
  return summaries, nil
}

func (cs *chatService) save(ctx context.Context, chat *types.Chat) error {
  if _, err := cs.chatRepo.Upsert(ctx, nil, chat); err != nil {
    cs.log.Warn("Failed to persist chat", "chatID", chat.ID, "error", err)
    return apperror.Internal(err, "failed to update chat")
  }
  cs.notify(ctx, chat)
  return nil
}

func (cs *chatService) notify(ctx context.Context, chat *types.Chat) {
  if cs.publisher == nil {
    return
  }
  payload := map[string]interface{}{
    "chatId":       chat.ID,
    "updatedAt":    chat.UpdatedAt,
    "messageCount": len(chat.Messages),
  }
  if err := cs.publisher.Publish(ctx, cs.channelFor(chat.UserID), EventChatUpdated, payload); err != nil {
    cs.log.Warn("Failed to publish chat event", "chatID", chat.ID, "error", err)
  }
}

func ensureMessages(chat *types.Chat) {
  if chat.Messages == nil {
    chat.Messages = []types.Message{}
  }
}
