package handlers

import (
  "net/http"

  "github.com/gin-gonic/gin"

  "github.com/kaar-org/kaar-backend/internal/apperror"
  "github.com/kaar-org/kaar-backend/internal/services"
  "github.com/kaar-org/kaar-backend/internal/types"
)

type ChatHandler struct {
  chatService       services.ChatService
  documentService   services.DocumentService
}

func NewChatHandler(chatService services.ChatService, documentService services.DocumentService) *ChatHandler {
  return &ChatHandler{chatService: chatService, documentService: documentService}
}

func (ch *ChatHandler) CreateChat(c *gin.Context) {
  rd, ok := currentUser(c)
  if !ok {
    return
  }
  var req struct {
    DocumentName    string      `json:"documentName"`
    BlobURL         string      `json:"blobUrl"`
    SourceID        string      `json:"sourceId"`
    InitialMessage  string      `json:"initialMessage"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return
  }
  chat, err := ch.chatService.CreateChat(c.Request.Context(), rd.Username, req.DocumentName, req.BlobURL, req.SourceID, req.InitialMessage)
  if err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, chat)
}

// SendMessage runs one question/answer turn against the chat's document.
func (ch *ChatHandler) SendMessage(c *gin.Context) {
  var req struct {
    Message         string      `json:"message"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return
  }
  chat, ok := ch.ownedChat(c)
  if !ok {
    return
  }
  answer, _, err := ch.chatService.ProcessTurn(c.Request.Context(), chat.ID, req.Message)
  if err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, gin.H{
    "message":    answer.Text,
    "chatId":     chat.ID,
    "references": answer.References,
  })
}

func (ch *ChatHandler) AddMessage(c *gin.Context) {
  var req struct {
    Sender          string      `json:"sender"`
    Content         string      `json:"content"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return
  }
  chat, ok := ch.ownedChat(c)
  if !ok {
    return
  }
  updated, err := ch.chatService.AddMessage(c.Request.Context(), chat.ID, req.Sender, req.Content)
  if err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, updated)
}

func (ch *ChatHandler) GetHistory(c *gin.Context) {
  summaries, err := ch.chatService.History(c.Request.Context(), c.Param("userId"))
  if err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, summaries)
}

func (ch *ChatHandler) GetUserChats(c *gin.Context) {
  chats, err := ch.chatService.GetUserChats(c.Request.Context(), c.Param("userId"))
  if err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, chats)
}

func (ch *ChatHandler) GetSession(c *gin.Context) {
  chat, ok := ch.ownedChat(c)
  if !ok {
    return
  }
  c.JSON(http.StatusOK, chat)
}

// UploadForChat registers a document with the inference backend only.
func (ch *ChatHandler) UploadForChat(c *gin.Context) {
  fileHeader, ok := formFile(c)
  if !ok {
    return
  }
  file, err := fileHeader.Open()
  if err != nil {
    respondError(c, apperror.Internal(err, "failed to open upload"))
    return
  }
  defer file.Close()
  res, err := ch.documentService.RegisterSource(c.Request.Context(), file, fileHeader.Filename, fileHeader.Header.Get("Content-Type"))
  if err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, gin.H{
    "message":  "File uploaded to chat successfully.",
    "fileName": res.FileName,
    "sourceId": res.SourceID,
  })
}

// ownedChat loads :chatId and answers 404 when it belongs to someone else, so
// other users' chat ids cannot be probed.
func (ch *ChatHandler) ownedChat(c *gin.Context) (*types.Chat, bool) {
  rd, ok := currentUser(c)
  if !ok {
    return nil, false
  }
  chatID := c.Param("chatId")
  chat, err := ch.chatService.GetChatByID(c.Request.Context(), chatID)
  if err != nil {
    respondError(c, err)
    return nil, false
  }
  if chat.UserID != rd.Username {
    c.JSON(http.StatusNotFound, gin.H{"error": "chat session with ID " + chatID + " not found"})
    return nil, false
  }
  return chat, true
}
