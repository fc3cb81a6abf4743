package handlers

import (
  "context"
  "net/http"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"
  "github.com/gorilla/websocket"

  "github.com/kaar-org/kaar-backend/internal/logger"
  "github.com/kaar-org/kaar-backend/internal/socket"
)

// NewUpgrader accepts any origin when allowed is empty.
func NewUpgrader(allowed []string) *websocket.Upgrader {
  allowedSet := map[string]struct{}{}
  for _, o := range allowed {
    allowedSet[o] = struct{}{}
  }
  return &websocket.Upgrader{
    CheckOrigin: func(r *http.Request) bool {
      if len(allowedSet) == 0 {
        return true
      }
      origin := r.Header.Get("Origin")
      if origin == "" {
        return true
      }
      _, ok := allowedSet[origin]
      return ok
    },
  }
}

// WsHandler upgrades an authenticated request and subscribes the connection to
// the caller's own channel. It expects RequireAuth to have run.
func WsHandler(hub *socket.Hub, upgrader *websocket.Upgrader, log *logger.Logger) gin.HandlerFunc {
  return func(c *gin.Context) {
    rd, ok := currentUser(c)
    if !ok {
      return
    }
    conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
    if err != nil {
      log.Warn("Failed to upgrade to websocket", "error", err)
      return
    }
    userChan := socket.UserChannel(rd.Username)

    // the request context ends when this handler returns; the connection outlives it
    ctx, cancel := context.WithCancel(context.Background())
    client := socket.NewClient(conn, hub, uuid.New(), cancel, log, []string{userChan})
    hub.Subscribe(client, []string{userChan})

    go client.WriteLoop(ctx)
    go client.ReadLoop(ctx)
  }
}
