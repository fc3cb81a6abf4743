package types

import (
  "time"

  "gorm.io/datatypes"
)

const (
  SenderUser = "user"
  SenderAI   = "ai"
)

func ValidSender(sender string) bool {
  return sender == SenderUser || sender == SenderAI
}

// Message is embedded in its Chat and never addressed on its own.
type Message struct {
  Sender              string                    `json:"sender"`
  Content             string                    `json:"content"`
  Timestamp           time.Time                 `json:"timestamp"`
}

// Chat is stored as one document: the transcript lives in a JSON column so a
// read or an upsert always moves the whole conversation.
type Chat struct {
  ID                  string                            `gorm:"primaryKey;column:id" json:"id"`
  UserID              string                            `gorm:"index;not null;column:user_id" json:"userId"`
  DocumentName        string                            `gorm:"column:document_name" json:"documentName"`
  BlobURL             string                            `gorm:"column:blob_url" json:"blobUrl"`
  SourceID            string                            `gorm:"column:source_id" json:"sourceId"`
  Messages            datatypes.JSONSlice[Message]      `gorm:"column:messages" json:"messages"`

  CreatedAt           time.Time                         `gorm:"not null;autoCreateTime:false" json:"createdAt"`
  UpdatedAt           time.Time                         `gorm:"not null;autoUpdateTime:false" json:"updatedAt"`
}

func (Chat) TableName() string {
  return "chat"
}

// AppendMessage adds msg to the transcript and moves UpdatedAt forward. UpdatedAt
// always strictly increases, even if the clock hands back the same instant twice.
func (c *Chat) AppendMessage(msg Message) {
  c.Messages = append(c.Messages, msg)
  c.Touch(msg.Timestamp)
}

func (c *Chat) Touch(now time.Time) {
  if !now.After(c.UpdatedAt) {
    now = c.UpdatedAt.Add(time.Microsecond)
  }
  c.UpdatedAt = now
}

// ChatSummary is the history-list projection of a Chat.
type ChatSummary struct {
  ID                  string                    `json:"id"`
  DocumentName        string                    `json:"documentName"`
  CreatedAt           time.Time                 `json:"createdAt"`
  UpdatedAt           time.Time                 `json:"updatedAt"`
  SourceID            string                    `json:"sourceId"`
  RecentMessages      []Message                 `json:"recentMessages"`
}

const recentMessageCount = 3

// Summary returns the chat with at most three of its newest messages, newest first.
func (c *Chat) Summary() ChatSummary {
  recent := make([]Message, 0, recentMessageCount)
  for i := len(c.Messages) - 1; i >= 0 && len(recent) < recentMessageCount; i-- {
    recent = append(recent, c.Messages[i])
  }
  return ChatSummary{
    ID:             c.ID,
    DocumentName:   c.DocumentName,
    CreatedAt:      c.CreatedAt,
    UpdatedAt:      c.UpdatedAt,
    SourceID:       c.SourceID,
    RecentMessages: recent,
  }
}
