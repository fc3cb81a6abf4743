package server

import (
  "bytes"
  "encoding/json"
  "fmt"
  "mime/multipart"
  "net/http"
  "net/http/httptest"
  "strings"
  "testing"
  "time"

  "github.com/gin-gonic/gin"
  "github.com/gorilla/websocket"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"
  "gorm.io/driver/sqlite"

  "github.com/kaar-org/kaar-backend/internal/db"
  "github.com/kaar-org/kaar-backend/internal/handlers"
  "github.com/kaar-org/kaar-backend/internal/logger"
  "github.com/kaar-org/kaar-backend/internal/middleware"
  "github.com/kaar-org/kaar-backend/internal/repos"
  "github.com/kaar-org/kaar-backend/internal/services"
  "github.com/kaar-org/kaar-backend/internal/socket"
)

func newTestRouter(t *testing.T) *gin.Engine {
  t.Helper()
  gin.SetMode(gin.TestMode)
  log := logger.NewNop()

  name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
  gdb, err := db.Open(sqlite.Open(fmt.Sprintf("file:router_%s?mode=memory&cache=shared", name)))
  require.NoError(t, err)
  require.NoError(t, db.AutoMigrate(gdb))
  t.Cleanup(func() {
    if sqlDB, err := gdb.DB(); err == nil {
      _ = sqlDB.Close()
    }
  })

  hub := socket.NewHub(log)
  userRepo := repos.NewUserRepo(gdb, log)
  chatRepo := repos.NewChatRepo(gdb, log)
  inference := scriptedInference{}
  authService := services.NewAuthService(gdb, log, userRepo, services.NewMemoryBlacklist(), "router-secret", time.Hour)
  documentService := services.NewDocumentService(log, newMemBucket(), inference)
  chatService := services.NewChatService(log, chatRepo, inference, hub, socket.UserChannel)

  return NewRouter(RouterConfig{
    AuthHandler:    handlers.NewAuthHandler(authService),
    AuthMiddleware: middleware.NewAuthMiddleware(log, authService),
    ChatHandler:    handlers.NewChatHandler(chatService, documentService),
    UploadHandler:  handlers.NewUploadHandler(documentService),
    WsHandler:      handlers.WsHandler(hub, handlers.NewUpgrader(nil), log),
    MaxUploadBytes: 1 << 20,
  })
}

func doJSON(t *testing.T, r http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
  t.Helper()
  var buf bytes.Buffer
  if body != nil {
    require.NoError(t, json.NewEncoder(&buf).Encode(body))
  }
  req := httptest.NewRequest(method, path, &buf)
  req.Header.Set("Content-Type", "application/json")
  if token != "" {
    req.Header.Set("Authorization", "Bearer "+token)
  }
  w := httptest.NewRecorder()
  r.ServeHTTP(w, req)
  return w
}

func doUpload(t *testing.T, r http.Handler, path, token, fileName, contentType, content string) *httptest.ResponseRecorder {
  t.Helper()
  w := httptest.NewRecorder()
  r.ServeHTTP(w, uploadRequest(t, path, token, fileName, contentType, content))
  return w
}

func uploadRequest(t *testing.T, path, token, fileName, contentType, content string) *http.Request {
  t.Helper()
  var buf bytes.Buffer
  mw := multipart.NewWriter(&buf)
  header := make(map[string][]string)
  header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename="%s"`, fileName)}
  header["Content-Type"] = []string{contentType}
  part, err := mw.CreatePart(header)
  require.NoError(t, err)
  _, err = part.Write([]byte(content))
  require.NoError(t, err)
  require.NoError(t, mw.Close())

  req := httptest.NewRequest(http.MethodPost, path, &buf)
  req.Header.Set("Content-Type", mw.FormDataContentType())
  req.Header.Set("Authorization", "Bearer "+token)
  return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
  t.Helper()
  require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func register(t *testing.T, r http.Handler, username, email string) string {
  t.Helper()
  w := doJSON(t, r, http.MethodPost, "/api/user/register", "", map[string]string{
    "username": username, "email": email, "password": "pw-" + username,
  })
  require.Equal(t, http.StatusOK, w.Code, w.Body.String())
  var out struct {
    Token string `json:"token"`
  }
  decode(t, w, &out)
  require.NotEmpty(t, out.Token)
  return out.Token
}

func TestHealthz(t *testing.T) {
  r := newTestRouter(t)
  w := doJSON(t, r, http.MethodGet, "/healthz", "", nil)
  assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterLoginLogoutFlow(t *testing.T) {
  r := newTestRouter(t)
  register(t, r, "alice", "alice@example.com")

  w := doJSON(t, r, http.MethodPost, "/api/user/register", "", map[string]string{
    "username": "alice", "email": "other@example.com", "password": "x",
  })
  assert.Equal(t, http.StatusBadRequest, w.Code)

  w = doJSON(t, r, http.MethodPost, "/api/user/login", "", map[string]string{"username": "alice", "password": "wrong"})
  assert.Equal(t, http.StatusUnauthorized, w.Code)

  w = doJSON(t, r, http.MethodPost, "/api/user/login", "", map[string]string{"username": "alice", "password": "pw-alice"})
  require.Equal(t, http.StatusOK, w.Code)
  var login struct {
    Username string `json:"username"`
    Email    string `json:"email"`
    Token    string `json:"token"`
  }
  decode(t, w, &login)
  assert.Equal(t, "alice", login.Username)
  assert.Equal(t, "alice@example.com", login.Email)

  w = doJSON(t, r, http.MethodGet, "/api/chat/history/alice", login.Token, nil)
  assert.Equal(t, http.StatusOK, w.Code)

  w = doJSON(t, r, http.MethodPost, "/api/user/logout", login.Token, nil)
  assert.Equal(t, http.StatusOK, w.Code)

  w = doJSON(t, r, http.MethodPost, "/api/user/logout", login.Token, nil)
  assert.Equal(t, http.StatusUnauthorized, w.Code)

  w = doJSON(t, r, http.MethodGet, "/api/chat/history/alice", login.Token, nil)
  assert.Equal(t, http.StatusUnauthorized, w.Code)

  w = doJSON(t, r, http.MethodPost, "/api/user/logout", "", nil)
  assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
  r := newTestRouter(t)
  w := doJSON(t, r, http.MethodGet, "/api/upload/userfiles", "", nil)
  assert.Equal(t, http.StatusUnauthorized, w.Code)
  w = doJSON(t, r, http.MethodGet, "/api/upload/userfiles", "garbage", nil)
  assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChatFlowAndOwnership(t *testing.T) {
  r := newTestRouter(t)
  alice := register(t, r, "alice", "alice@example.com")
  bob := register(t, r, "bob", "bob@example.com")

  w := doJSON(t, r, http.MethodPost, "/api/chat/create", alice, map[string]string{
    "documentName": "report.pdf", "blobUrl": "https://blobs.test/x", "sourceId": "src_1", "initialMessage": "hi",
  })
  require.Equal(t, http.StatusOK, w.Code, w.Body.String())
  var chat struct {
    ID       string `json:"id"`
    UserID   string `json:"userId"`
    Messages []struct {
      Sender  string `json:"sender"`
      Content string `json:"content"`
    } `json:"messages"`
  }
  decode(t, w, &chat)
  assert.Equal(t, "alice", chat.UserID)
  require.Len(t, chat.Messages, 1)

  w = doJSON(t, r, http.MethodPost, "/api/chat/message/"+chat.ID, alice, map[string]string{"message": "what is it?"})
  require.Equal(t, http.StatusOK, w.Code, w.Body.String())
  var turn struct {
    Message    string `json:"message"`
    ChatID     string `json:"chatId"`
    References []struct {
      Page int `json:"page"`
    } `json:"references"`
  }
  decode(t, w, &turn)
  assert.Equal(t, "You asked: what is it?", turn.Message)
  assert.Equal(t, chat.ID, turn.ChatID)
  require.Len(t, turn.References, 1)
  assert.Equal(t, 1, turn.References[0].Page)

  w = doJSON(t, r, http.MethodPost, "/api/chat/session/"+chat.ID+"/messages", alice, map[string]string{"sender": "ai", "content": "extra"})
  require.Equal(t, http.StatusOK, w.Code)
  decode(t, w, &chat)
  assert.Len(t, chat.Messages, 4)

  w = doJSON(t, r, http.MethodPost, "/api/chat/session/"+chat.ID+"/messages", alice, map[string]string{"sender": "robot", "content": "x"})
  assert.Equal(t, http.StatusBadRequest, w.Code)

  w = doJSON(t, r, http.MethodGet, "/api/chat/session/"+chat.ID, bob, nil)
  assert.Equal(t, http.StatusNotFound, w.Code)
  w = doJSON(t, r, http.MethodPost, "/api/chat/message/"+chat.ID, bob, map[string]string{"message": "peek"})
  assert.Equal(t, http.StatusNotFound, w.Code)
  w = doJSON(t, r, http.MethodGet, "/api/chat/session/does-not-exist", alice, nil)
  assert.Equal(t, http.StatusNotFound, w.Code)

  w = doJSON(t, r, http.MethodGet, "/api/chat/history/alice", bob, nil)
  assert.Equal(t, http.StatusForbidden, w.Code)

  w = doJSON(t, r, http.MethodGet, "/api/chat/history/alice", alice, nil)
  require.Equal(t, http.StatusOK, w.Code)
  var history []struct {
    ID             string `json:"id"`
    RecentMessages []struct {
      Content string `json:"content"`
    } `json:"recentMessages"`
  }
  decode(t, w, &history)
  require.Len(t, history, 1)
  require.Len(t, history[0].RecentMessages, 3)
  assert.Equal(t, "extra", history[0].RecentMessages[0].Content)

  w = doJSON(t, r, http.MethodGet, "/api/chat/user/alice", alice, nil)
  assert.Equal(t, http.StatusOK, w.Code)
}

func TestUploadRoutes(t *testing.T) {
  r := newTestRouter(t)
  alice := register(t, r, "alice", "Alice@Example.com")

  w := doJSON(t, r, http.MethodGet, "/api/upload/userfiles", alice, nil)
  assert.Equal(t, http.StatusNotFound, w.Code)

  w = doUpload(t, r, "/api/upload/file", alice, "notes.txt", "text/plain", "some notes")
  require.Equal(t, http.StatusOK, w.Code, w.Body.String())

  w = doUpload(t, r, "/api/upload/aiupload", alice, "paper.pdf", "application/pdf", "%PDF-1.4 body")
  require.Equal(t, http.StatusOK, w.Code, w.Body.String())
  var ai struct {
    SourceID string `json:"sourceId"`
  }
  decode(t, w, &ai)
  assert.Equal(t, "src_paper.pdf", ai.SourceID)

  w = doJSON(t, r, http.MethodGet, "/api/upload/userfiles", alice, nil)
  require.Equal(t, http.StatusOK, w.Code)
  var files []struct {
    FileName    string `json:"fileName"`
    DisplayName string `json:"displayName"`
  }
  decode(t, w, &files)
  require.Len(t, files, 2)
  assert.Equal(t, "alice_at_example_dot_com_alice/ai_paper.pdf", files[0].FileName)
  assert.Equal(t, "notes.txt", files[1].DisplayName)

  w = doJSON(t, r, http.MethodGet, "/api/upload/getfile?fileName=notes.txt", alice, nil)
  require.Equal(t, http.StatusOK, w.Code)
  assert.Equal(t, "some notes", w.Body.String())
  assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
  assert.Contains(t, w.Header().Get("Content-Disposition"), "notes.txt")

  w = doJSON(t, r, http.MethodDelete, "/api/upload/deletefile?fileName=notes.txt", alice, nil)
  assert.Equal(t, http.StatusOK, w.Code)
  w = doJSON(t, r, http.MethodDelete, "/api/upload/deletefile?fileName=notes.txt", alice, nil)
  assert.Equal(t, http.StatusNotFound, w.Code)

  w = doJSON(t, r, http.MethodPost, "/api/upload/ask", alice, map[string]string{"sourceId": "src_paper.pdf", "question": "why?"})
  require.Equal(t, http.StatusOK, w.Code)
  var answer struct {
    Text string `json:"text"`
  }
  decode(t, w, &answer)
  assert.Equal(t, "You asked: why?", answer.Text)

  w = doJSON(t, r, http.MethodPost, "/api/upload/ask", alice, map[string]string{"sourceId": "", "question": "why?"})
  assert.Equal(t, http.StatusBadRequest, w.Code)

  w = doJSON(t, r, http.MethodPost, "/api/upload/deletesource", alice, map[string]string{"sourceId": "src_paper.pdf"})
  assert.Equal(t, http.StatusOK, w.Code)
}

func TestUploadRejectsOversizedBody(t *testing.T) {
  r := newTestRouter(t)
  alice := register(t, r, "alice", "alice@example.com")
  w := doUpload(t, r, "/api/upload/file", alice, "big.txt", "text/plain", strings.Repeat("x", 2<<20))
  assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestUploadWithoutLengthIsStillCapped(t *testing.T) {
  r := newTestRouter(t)
  alice := register(t, r, "alice", "alice@example.com")
  for _, path := range []string{"/api/upload/file", "/api/upload/aiupload", "/api/chat/upload"} {
    req := uploadRequest(t, path, alice, "big.txt", "text/plain", strings.Repeat("x", 2<<20))
    req.ContentLength = -1
    w := httptest.NewRecorder()
    r.ServeHTTP(w, req)
    assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, path+": "+w.Body.String())
  }
}

func TestWebsocketReceivesChatEvents(t *testing.T) {
  r := newTestRouter(t)
  srv := httptest.NewServer(r)
  defer srv.Close()
  alice := register(t, r, "alice", "alice@example.com")

  wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?token=" + alice
  conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
  require.NoError(t, err)
  defer conn.Close()

  // the subscription is registered before the upgrade handler returns, but give
  // the server goroutines a moment to start their pumps
  time.Sleep(50 * time.Millisecond)

  w := doJSON(t, r, http.MethodPost, "/api/chat/create", alice, map[string]string{"documentName": "d.pdf", "sourceId": "s"})
  require.Equal(t, http.StatusOK, w.Code)

  require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
  var msg socket.Message
  require.NoError(t, conn.ReadJSON(&msg))
  assert.Equal(t, "user:alice", msg.Channel)
  assert.Equal(t, services.EventChatUpdated, msg.Event)
}

func TestWebsocketRequiresToken(t *testing.T) {
  r := newTestRouter(t)
  srv := httptest.NewServer(r)
  defer srv.Close()

  wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
  _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
  require.Error(t, err)
  require.NotNil(t, resp)
  assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
