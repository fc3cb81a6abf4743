package services

import (
  "bytes"
  "context"
  "io"
  "path"
  "strings"

  "github.com/dustin/go-humanize"
  "github.com/gabriel-vasile/mimetype"

  "github.com/kaar-org/kaar-backend/internal/apperror"
  "github.com/kaar-org/kaar-backend/internal/logger"
  "github.com/kaar-org/kaar-backend/internal/normalization"
  "github.com/kaar-org/kaar-backend/internal/types"
)

const aiFilePrefix = "ai_"

// sniffLen is how many leading bytes mimetype gets to look at.
const sniffLen = 3072

type UploadResult struct {
  FileName            string        `json:"fileName"`
  Path                string        `json:"path"`
  BlobURL             string        `json:"blobUrl"`
}

type AIUploadResult struct {
  FileName            string        `json:"fileName"`
  SourceID            string        `json:"sourceId"`
  BlobURL             string        `json:"blobUrl"`
}

type FileDownload struct {
  Content             io.ReadCloser
  FileName            string
  ContentType         string
  Size                int64
}

// DocumentService owns a user's folder in the object store and the documents
// registered with the inference backend. Callers pass the identity from the token.
type DocumentService interface {
  UploadFile(ctx context.Context, email, username string, file io.Reader, fileName, contentType string) (*UploadResult, error)
  UploadForAI(ctx context.Context, email, username string, file io.Reader, fileName, contentType string) (*AIUploadResult, error)
  RegisterSource(ctx context.Context, file io.Reader, fileName, contentType string) (*AIUploadResult, error)
  ListUserFiles(ctx context.Context, email, username string) ([]types.UserFileInfo, error)
  ListAIFiles(ctx context.Context, email, username string) ([]types.UserFileInfo, error)
  GetFile(ctx context.Context, email, username, fileName string) (*FileDownload, error)
  DeleteFile(ctx context.Context, email, username, fileName string) (string, error)

  Ask(ctx context.Context, sourceID, question string) (*types.Answer, error)
  Converse(ctx context.Context, sourceID string, messages []types.ConversationMessage) (*types.Answer, error)
  DeleteSource(ctx context.Context, sourceID string) error
}

type documentService struct {
  log               *logger.Logger
  bucket            BucketService
  inference         InferenceService
}

func NewDocumentService(log *logger.Logger, bucket BucketService, inference InferenceService) DocumentService {
  serviceLog := log.With("service", "DocumentService")
  return &documentService{
    log:        serviceLog,
    bucket:     bucket,
    inference:  inference,
  }
}

//----------------------------------------------------------------------------------------------------------------------
// Uploads
//----------------------------------------------------------------------------------------------------------------------

func (ds *documentService) UploadFile(ctx context.Context, email, username string, file io.Reader, rawFileName, contentType string) (*UploadResult, error) {
  //1) Checks
  fileName, err := cleanFileName(rawFileName)
  if err != nil {
    return nil, err
  }
  if file == nil {
    return nil, apperror.BadRequest("no file uploaded")
  }

  //2) Content type
  body, contentType, err := sniffContentType(file, contentType)
  if err != nil {
    return nil, apperror.Internal(err, "failed to read upload")
  }
  if body.Len() == 0 {
    return nil, apperror.BadRequest("no file uploaded")
  }

  //3) Store
  key := normalization.BlobPath(email, username, fileName)
  if err := ds.bucket.Upload(ctx, key, body, contentType, ownerMetadata(email, username)); err != nil {
    ds.log.Warn("Failed to upload file to bucket", "key", key, "error", err)
    return nil, apperror.Internal(err, "failed to upload file")
  }
  ds.log.Info("Uploaded user file", "key", key, "contentType", contentType)
  return &UploadResult{FileName: fileName, Path: key, BlobURL: ds.bucket.PublicURL(key)}, nil
}

// RegisterSource sends a document to the inference backend without keeping a copy.
func (ds *documentService) RegisterSource(ctx context.Context, file io.Reader, rawFileName, contentType string) (*AIUploadResult, error) {
  fileName, data, _, err := prepareAIUpload(file, rawFileName, contentType)
  if err != nil {
    return nil, err
  }
  sourceID, err := ds.inference.AddSource(ctx, bytes.NewReader(data), fileName)
  if err != nil {
    ds.log.Warn("Failed to register file with inference backend", "fileName", fileName, "error", err)
    return nil, apperror.Internal(err, "failed to upload file to chat")
  }
  return &AIUploadResult{FileName: fileName, SourceID: sourceID}, nil
}

// UploadForAI registers the document with the inference backend first and then keeps
// a copy under ai_<name>. If the copy fails the inference source stays registered.
func (ds *documentService) UploadForAI(ctx context.Context, email, username string, file io.Reader, rawFileName, contentType string) (*AIUploadResult, error) {
  //1) Checks
  fileName, data, contentType, err := prepareAIUpload(file, rawFileName, contentType)
  if err != nil {
    return nil, err
  }

  //2) Register with inference
  sourceID, err := ds.inference.AddSource(ctx, bytes.NewReader(data), fileName)
  if err != nil {
    ds.log.Warn("Failed to register file with inference backend", "fileName", fileName, "error", err)
    return nil, apperror.Internal(err, "failed to upload file to AI")
  }

  //3) Keep a copy in the user's folder
  key := normalization.BlobPath(email, username, aiFilePrefix+fileName)
  metadata := ownerMetadata(email, username)
  metadata["sourceId"] = sourceID
  if err := ds.bucket.Upload(ctx, key, bytes.NewReader(data), contentType, metadata); err != nil {
    ds.log.Warn("Inference source registered but blob copy failed", "sourceId", sourceID, "key", key, "error", err)
    return nil, apperror.Internal(err, "failed to store AI file")
  }
  ds.log.Info("Uploaded AI file", "key", key, "sourceId", sourceID)
  return &AIUploadResult{FileName: fileName, SourceID: sourceID, BlobURL: ds.bucket.PublicURL(key)}, nil
}

//----------------------------------------------------------------------------------------------------------------------
// Listing, download, delete
//----------------------------------------------------------------------------------------------------------------------

func (ds *documentService) ListUserFiles(ctx context.Context, email, username string) ([]types.UserFileInfo, error) {
  objects, err := ds.listFolder(ctx, email, username)
  if err != nil {
    return nil, err
  }
  if len(objects) == 0 {
    return nil, apperror.NotFound("no files found for the specified user")
  }
  files := make([]types.UserFileInfo, 0, len(objects))
  for _, obj := range objects {
    files = append(files, ds.fileInfo(obj))
  }
  return files, nil
}

func (ds *documentService) ListAIFiles(ctx context.Context, email, username string) ([]types.UserFileInfo, error) {
  objects, err := ds.listFolder(ctx, email, username)
  if err != nil {
    return nil, err
  }
  files := make([]types.UserFileInfo, 0, len(objects))
  for _, obj := range objects {
    if IsAIEligible(obj.ContentType, obj.Key) {
      files = append(files, ds.fileInfo(obj))
    }
  }
  return files, nil
}

func (ds *documentService) GetFile(ctx context.Context, email, username, rawFileName string) (*FileDownload, error) {
  key, fileName, err := resolveKey(email, username, rawFileName)
  if err != nil {
    return nil, err
  }
  rc, info, err := ds.bucket.Download(ctx, key)
  if err != nil {
    if apperror.IsNotFound(err) {
      return nil, apperror.NotFound("file not found: %s", key)
    }
    return nil, apperror.Internal(err, "failed to retrieve file")
  }
  contentType := info.ContentType
  if contentType == "" {
    contentType = ContentTypeFromFileName(fileName)
  }
  return &FileDownload{Content: rc, FileName: fileName, ContentType: contentType, Size: info.Size}, nil
}

func (ds *documentService) DeleteFile(ctx context.Context, email, username, rawFileName string) (string, error) {
  key, _, err := resolveKey(email, username, rawFileName)
  if err != nil {
    return "", err
  }
  exists, err := ds.bucket.Exists(ctx, key)
  if err != nil {
    return "", apperror.Internal(err, "failed to check file")
  }
  if !exists {
    return "", apperror.NotFound("file not found: %s", key)
  }
  if err := ds.bucket.Delete(ctx, key); err != nil {
    if apperror.IsNotFound(err) {
      return "", apperror.NotFound("file not found: %s", key)
    }
    return "", apperror.Internal(err, "failed to delete file")
  }
  ds.log.Info("Deleted user file", "key", key)
  return key, nil
}

//----------------------------------------------------------------------------------------------------------------------
// Inference passthrough
//----------------------------------------------------------------------------------------------------------------------

func (ds *documentService) Ask(ctx context.Context, sourceID, question string) (*types.Answer, error) {
  if normalization.TrimInput(sourceID) == "" || normalization.TrimInput(question) == "" {
    return nil, apperror.BadRequest("sourceId and question are required")
  }
  answer, err := ds.inference.Ask(ctx, sourceID, question, true)
  if err != nil {
    return nil, inferenceError(err, "failed to ask question")
  }
  return answer, nil
}

func (ds *documentService) Converse(ctx context.Context, sourceID string, messages []types.ConversationMessage) (*types.Answer, error) {
  if normalization.TrimInput(sourceID) == "" || len(messages) == 0 {
    return nil, apperror.BadRequest("sourceId and at least one message are required")
  }
  answer, err := ds.inference.AskConversation(ctx, sourceID, messages, true)
  if err != nil {
    return nil, inferenceError(err, "failed to continue conversation")
  }
  return answer, nil
}

func (ds *documentService) DeleteSource(ctx context.Context, sourceID string) error {
  if normalization.TrimInput(sourceID) == "" {
    return apperror.BadRequest("sourceId is required")
  }
  if err := ds.inference.DeleteSources(ctx, sourceID); err != nil {
    return inferenceError(err, "failed to delete source")
  }
  return nil
}

//----------------------------------------------------------------------------------------------------------------------
// Helpers
//----------------------------------------------------------------------------------------------------------------------

func (ds *documentService) listFolder(ctx context.Context, email, username string) ([]ObjectInfo, error) {
  prefix := normalization.UserFolder(email, username) + "/"
  objects, err := ds.bucket.List(ctx, prefix)
  if err != nil {
    ds.log.Warn("Failed to list user folder", "prefix", prefix, "error", err)
    return nil, apperror.Internal(err, "failed to list files")
  }
  return objects, nil
}

func (ds *documentService) fileInfo(obj ObjectInfo) types.UserFileInfo {
  return types.UserFileInfo{
    FileName:     obj.Key,
    DisplayName:  path.Base(obj.Key),
    BlobURL:      ds.bucket.PublicURL(obj.Key),
    LastModified: obj.Updated.UTC(),
    Size:         humanize.IBytes(uint64(obj.Size)),
    ContentType:  obj.ContentType,
  }
}

func ownerMetadata(email, username string) map[string]string {
  return map[string]string{
    "email":    normalization.ParseInputString(email),
    "username": normalization.TrimInput(username),
  }
}

func inferenceError(err error, msg string) error {
  if k := apperror.KindOf(err); k == apperror.KindBadRequest {
    return err
  }
  return apperror.Internal(err, msg)
}

func cleanFileName(raw string) (string, error) {
  name := path.Base(strings.ReplaceAll(normalization.TrimInput(raw), "\\", "/"))
  if name == "" || name == "." || name == ".." || name == "/" {
    return "", apperror.BadRequest("a file name is required")
  }
  return name, nil
}

// resolveKey accepts either a name inside the user's folder or the full path that
// the listings return, and always resolves inside the caller's own folder.
func resolveKey(email, username, raw string) (string, string, error) {
  name := normalization.TrimInput(raw)
  if name == "" {
    return "", "", apperror.BadRequest("fileName is required")
  }
  folder := normalization.UserFolder(email, username) + "/"
  name = strings.TrimPrefix(name, folder)
  for _, seg := range strings.Split(name, "/") {
    if seg == "" || seg == "." || seg == ".." {
      return "", "", apperror.BadRequest("invalid file name %q", raw)
    }
  }
  return folder + name, path.Base(name), nil
}

func prepareAIUpload(file io.Reader, rawFileName, contentType string) (string, []byte, string, error) {
  fileName, err := cleanFileName(rawFileName)
  if err != nil {
    return "", nil, "", err
  }
  if file == nil {
    return "", nil, "", apperror.BadRequest("no file uploaded")
  }
  body, contentType, err := sniffContentType(file, contentType)
  if err != nil {
    return "", nil, "", apperror.Internal(err, "failed to read upload")
  }
  if body.Len() == 0 {
    return "", nil, "", apperror.BadRequest("no file uploaded")
  }
  if !IsAIEligible(contentType, fileName) {
    return "", nil, "", apperror.BadRequest("file format %s is not supported; upload PDF, Word, PowerPoint or text files", contentType)
  }
  return fileName, body.Bytes(), contentType, nil
}

func sniffContentType(r io.Reader, declared string) (*bytes.Buffer, string, error) {
  body := &bytes.Buffer{}
  if _, err := io.Copy(body, r); err != nil {
    return nil, "", err
  }
  declared = normalization.TrimInput(declared)
  if declared != "" && declared != "application/octet-stream" {
    return body, declared, nil
  }
  head := body.Bytes()
  if len(head) > sniffLen {
    head = head[:sniffLen]
  }
  return body, mimetype.Detect(head).String(), nil
}

// IsAIEligible reports whether a document can be registered for AI chat: pdf, word,
// powerpoint or plain text, judged by content type or extension.
func IsAIEligible(contentType, name string) bool {
  ct := strings.ToLower(contentType)
  ext := strings.ToLower(path.Ext(name))
  isPdf := strings.Contains(ct, "pdf") || ext == ".pdf"
  isWord := strings.Contains(ct, "word") || strings.Contains(ct, "document") || ext == ".doc" || ext == ".docx"
  isPowerPoint := strings.Contains(ct, "presentation") || strings.Contains(ct, "powerpoint") || ext == ".ppt" || ext == ".pptx"
  isText := strings.Contains(ct, "text") || ext == ".txt"
  return isPdf || isWord || isPowerPoint || isText
}

func ContentTypeFromFileName(name string) string {
  switch strings.ToLower(path.Ext(name)) {
  case ".pdf":
    return "application/pdf"
  case ".doc":
    return "application/msword"
  case ".docx":
    return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
  case ".ppt":
    return "application/vnd.ms-powerpoint"
  case ".pptx":
    return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
  case ".txt":
    return "text/plain"
  default:
    return "application/octet-stream"
  }
}
