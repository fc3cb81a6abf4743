package services

import (
  "bytes"
  "context"
  "encoding/json"
  "fmt"
  "io"
  "mime/multipart"
  "net/http"
  "strings"
  "time"

  "github.com/kaar-org/kaar-backend/internal/apperror"
  "github.com/kaar-org/kaar-backend/internal/logger"
  "github.com/kaar-org/kaar-backend/internal/types"
)

const DefaultChatPDFBaseURL = "https://api.chatpdf.com"

// InferenceService is the document Q&A backend. A document is registered once as a
// source and then addressed by its source id.
type InferenceService interface {
  AddSource(ctx context.Context, file io.Reader, fileName string) (string, error)
  Ask(ctx context.Context, sourceID, question string, withReferences bool) (*types.Answer, error)
  AskConversation(ctx context.Context, sourceID string, messages []types.ConversationMessage, withReferences bool) (*types.Answer, error)
  DeleteSources(ctx context.Context, sourceIDs ...string) error
}

type chatPDFService struct {
  log               *logger.Logger
  client            *http.Client
  baseURL           string
  apiKey            string
}

func NewChatPDFService(log *logger.Logger, baseURL, apiKey string, timeout time.Duration) InferenceService {
  serviceLog := log.With("service", "ChatPDFService")
  if baseURL == "" {
    baseURL = DefaultChatPDFBaseURL
  }
  if apiKey == "" {
    serviceLog.Warn("CHATPDF_API_KEY not set; calls might fail or be unauthorized")
  }
  httpClient := &http.Client{
    Timeout: timeout,
  }
  return &chatPDFService{
    log:      serviceLog,
    client:   httpClient,
    baseURL:  strings.TrimRight(baseURL, "/"),
    apiKey:   apiKey,
  }
}

type chatPDFMessageRequest struct {
  SourceID            string                        `json:"sourceId"`
  Messages            []types.ConversationMessage   `json:"messages"`
  ReferenceSources    bool                          `json:"referenceSources"`
}

type chatPDFDeleteRequest struct {
  Sources             []string                      `json:"sources"`
}

type chatPDFAnswer struct {
  Content             *string                       `json:"content"`
  References          []struct {
    PageNumber        int                           `json:"pageNumber"`
  }                                                 `json:"references"`
}

func (cs *chatPDFService) AddSource(ctx context.Context, file io.Reader, fileName string) (string, error) {
  //1) Build multipart body
  var body bytes.Buffer
  writer := multipart.NewWriter(&body)
  part, err := writer.CreateFormFile("file", fileName)
  if err != nil {
    cs.log.Warn("failed to create multipart part", "error", err)
    return "", err
  }
  if _, err := io.Copy(part, file); err != nil {
    cs.log.Warn("failed to copy file into multipart body", "error", err)
    return "", err
  }
  if err := writer.Close(); err != nil {
    return "", err
  }

  //2) Send
  respBody, err := cs.do(ctx, "/v1/sources/add-file", writer.FormDataContentType(), &body)
  if err != nil {
    return "", err
  }

  //3) Pull out the source id
  var out struct {
    SourceID string `json:"sourceId"`
  }
  if err := json.Unmarshal(respBody, &out); err != nil || out.SourceID == "" {
    cs.log.Warn("chatpdf add-file response carried no sourceId", "body", string(respBody))
    return "", fmt.Errorf("chatpdf add-file: no sourceId in response")
  }
  cs.log.Info("Registered inference source", "fileName", fileName, "sourceId", out.SourceID)
  return out.SourceID, nil
}

func (cs *chatPDFService) Ask(ctx context.Context, sourceID, question string, withReferences bool) (*types.Answer, error) {
  messages := []types.ConversationMessage{{Role: "user", Content: question}}
  return cs.AskConversation(ctx, sourceID, messages, withReferences)
}

func (cs *chatPDFService) AskConversation(ctx context.Context, sourceID string, messages []types.ConversationMessage, withReferences bool) (*types.Answer, error) {
  if sourceID == "" {
    return nil, apperror.BadRequest("sourceId is required")
  }
  if len(messages) == 0 {
    return nil, apperror.BadRequest("at least one message is required")
  }
  payload, err := json.Marshal(chatPDFMessageRequest{
    SourceID:         sourceID,
    Messages:         messages,
    ReferenceSources: withReferences,
  })
  if err != nil {
    return nil, err
  }
  respBody, err := cs.do(ctx, "/v1/chats/message", "application/json", bytes.NewReader(payload))
  if err != nil {
    return nil, err
  }
  return ParseAnswer(respBody), nil
}

func (cs *chatPDFService) DeleteSources(ctx context.Context, sourceIDs ...string) error {
  if len(sourceIDs) == 0 {
    return apperror.BadRequest("at least one sourceId is required")
  }
  payload, err := json.Marshal(chatPDFDeleteRequest{Sources: sourceIDs})
  if err != nil {
    return err
  }
  if _, err := cs.do(ctx, "/v1/sources/delete", "application/json", bytes.NewReader(payload)); err != nil {
    return err
  }
  cs.log.Info("Deleted inference sources", "sourceIds", sourceIDs)
  return nil
}

func (cs *chatPDFService) do(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
  req, err := http.NewRequestWithContext(ctx, http.MethodPost, cs.baseURL+path, body)
  if err != nil {
    cs.log.Warn("failed to build new request", "error", err)
    return nil, err
  }
  req.Header.Set("Content-Type", contentType)
  if cs.apiKey != "" {
    req.Header.Set("x-api-key", cs.apiKey)
  }
  resp, err := cs.client.Do(req)
  if err != nil {
    cs.log.Warn("failed to call chatpdf", "path", path, "error", err)
    return nil, fmt.Errorf("chatpdf %s: %w", path, err)
  }
  defer resp.Body.Close()

  bodyBytes, err := io.ReadAll(resp.Body)
  if err != nil {
    cs.log.Warn("failed to read chatpdf response body", "error", err)
    return nil, err
  }
  if resp.StatusCode < 200 || resp.StatusCode > 299 {
    cs.log.Warn("chatpdf responded with non-2xx", "path", path, "statusCode", resp.StatusCode, "body", string(bodyBytes))
    return nil, fmt.Errorf("chatpdf HTTP %d: %s", resp.StatusCode, string(bodyBytes))
  }
  return bodyBytes, nil
}

// ParseAnswer accepts the shapes the backend has been seen to return: an object
// with content and optional page references, a bare JSON string, or plain text.
func ParseAnswer(body []byte) *types.Answer {
  trimmed := bytes.TrimSpace(body)
  var obj chatPDFAnswer
  if err := json.Unmarshal(trimmed, &obj); err == nil && obj.Content != nil {
    answer := &types.Answer{Text: *obj.Content, References: []types.Reference{}}
    for _, ref := range obj.References {
      answer.References = append(answer.References, types.Reference{Page: ref.PageNumber})
    }
    return answer
  }
  var s string
  if err := json.Unmarshal(trimmed, &s); err == nil {
    return &types.Answer{Text: s, References: []types.Reference{}}
  }
  return &types.Answer{Text: string(trimmed), References: []types.Reference{}}
}
