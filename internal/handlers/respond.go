package handlers

import (
  "errors"
  "mime/multipart"
  "net/http"

  "github.com/gin-gonic/gin"

  "github.com/kaar-org/kaar-backend/internal/apperror"
  "github.com/kaar-org/kaar-backend/internal/requestdata"
)

func respondError(c *gin.Context, err error) {
  c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
}

// formFile reads the "file" part, answering 413 when the body cap was hit while
// parsing and 400 when the part is missing.
func formFile(c *gin.Context) (*multipart.FileHeader, bool) {
  fileHeader, err := c.FormFile("file")
  if err != nil {
    var tooLarge *http.MaxBytesError
    if errors.As(err, &tooLarge) {
      c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
      return nil, false
    }
    c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded."})
    return nil, false
  }
  return fileHeader, true
}

// currentUser returns the identity RequireAuth put on the request.
func currentUser(c *gin.Context) (*requestdata.RequestData, bool) {
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil || rd.Username == "" {
    c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
    return nil, false
  }
  return rd, true
}

func Healthz(c *gin.Context) {
  c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
