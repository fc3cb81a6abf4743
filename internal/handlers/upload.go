package handlers

import (
  "mime"
  "net/http"

  "github.com/gin-gonic/gin"

  "github.com/kaar-org/kaar-backend/internal/apperror"
  "github.com/kaar-org/kaar-backend/internal/services"
  "github.com/kaar-org/kaar-backend/internal/types"
)

type UploadHandler struct {
  documentService   services.DocumentService
}

func NewUploadHandler(documentService services.DocumentService) *UploadHandler {
  return &UploadHandler{documentService: documentService}
}

func (uh *UploadHandler) UploadFile(c *gin.Context) {
  rd, ok := currentUser(c)
  if !ok {
    return
  }
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

  res, err := uh.documentService.UploadFile(c.Request.Context(), rd.Email, rd.Username, file, fileHeader.Filename, fileHeader.Header.Get("Content-Type"))
  if err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, gin.H{"message": "File uploaded successfully.", "fileName": res.FileName, "path": res.Path})
}

func (uh *UploadHandler) UploadForAI(c *gin.Context) {
  rd, ok := currentUser(c)
  if !ok {
    return
  }
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

  res, err := uh.documentService.UploadForAI(c.Request.Context(), rd.Email, rd.Username, file, fileHeader.Filename, fileHeader.Header.Get("Content-Type"))
  if err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, gin.H{
    "message":  "File uploaded to AI successfully.",
    "fileName": res.FileName,
    "sourceId": res.SourceID,
    "blobUrl":  res.BlobURL,
  })
}

func (uh *UploadHandler) ListUserFiles(c *gin.Context) {
  rd, ok := currentUser(c)
  if !ok {
    return
  }
  files, err := uh.documentService.ListUserFiles(c.Request.Context(), rd.Email, rd.Username)
  if err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, files)
}

func (uh *UploadHandler) ListAIFiles(c *gin.Context) {
  rd, ok := currentUser(c)
  if !ok {
    return
  }
  files, err := uh.documentService.ListAIFiles(c.Request.Context(), rd.Email, rd.Username)
  if err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, files)
}

func (uh *UploadHandler) GetFile(c *gin.Context) {
  rd, ok := currentUser(c)
  if !ok {
    return
  }
  dl, err := uh.documentService.GetFile(c.Request.Context(), rd.Email, rd.Username, c.Query("fileName"))
  if err != nil {
    respondError(c, err)
    return
  }
  defer dl.Content.Close()
  disposition := mime.FormatMediaType("attachment", map[string]string{"filename": dl.FileName})
  c.DataFromReader(http.StatusOK, dl.Size, dl.ContentType, dl.Content, map[string]string{
    "Content-Disposition": disposition,
  })
}

func (uh *UploadHandler) DeleteFile(c *gin.Context) {
  rd, ok := currentUser(c)
  if !ok {
    return
  }
  fileName := c.Query("fileName")
  path, err := uh.documentService.DeleteFile(c.Request.Context(), rd.Email, rd.Username, fileName)
  if err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, gin.H{"message": "File deleted successfully.", "fileName": fileName, "path": path})
}

func (uh *UploadHandler) Ask(c *gin.Context) {
  var req struct {
    SourceID        string      `json:"sourceId"`
    Question        string      `json:"question"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return
  }
  answer, err := uh.documentService.Ask(c.Request.Context(), req.SourceID, req.Question)
  if err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, answer)
}

func (uh *UploadHandler) Conversation(c *gin.Context) {
  var req struct {
    SourceID        string                        `json:"sourceId"`
    Messages        []types.ConversationMessage   `json:"messages"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return
  }
  answer, err := uh.documentService.Converse(c.Request.Context(), req.SourceID, req.Messages)
  if err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, answer)
}

func (uh *UploadHandler) DeleteSource(c *gin.Context) {
  var req struct {
    SourceID        string      `json:"sourceId"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return
  }
  if err := uh.documentService.DeleteSource(c.Request.Context(), req.SourceID); err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, gin.H{"message": "Source deleted successfully."})
}
