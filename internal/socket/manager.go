package socket

import (
    "context"
    "fmt"
    "sync"
    "time"

    "github.com/google/uuid"

    "github.com/kaar-org/kaar-backend/internal/logger"
)

// Message is what a subscriber receives. Origin names the hub that produced it so
// a hub can ignore its own messages coming back through Redis.
type Message struct {
    Channel     string      `json:"channel"`
    Event       string      `json:"event"`
    Data        interface{} `json:"data,omitempty"`
    SentAt      time.Time   `json:"sentAt"`
    Origin      string      `json:"origin,omitempty"`
}

func UserChannel(userID string) string {
    return fmt.Sprintf("user:%s", userID)
}

type Hub struct {
    log         *logger.Logger
    id          string
    mu          sync.RWMutex
    channels    map[string]map[uuid.UUID]*Client

    redisPubSub *RedisPubSub
}

func NewHub(log *logger.Logger) *Hub {
    return &Hub{
        log:       log.With("component", "Hub"),
        id:        uuid.NewString(),
        channels:  make(map[string]map[uuid.UUID]*Client),
    }
}

func (h *Hub) SetRedisPubSub(rp *RedisPubSub) {
    h.redisPubSub = rp
}

func (h *Hub) Subscribe(client *Client, channels []string) {
    h.mu.Lock()
    defer h.mu.Unlock()

    for _, ch := range channels {
        if h.channels[ch] == nil {
            h.channels[ch] = make(map[uuid.UUID]*Client)
        }
        h.channels[ch][client.ID] = client
    }
    h.log.Debug("Client subscribed", "client", client.ID, "channels", channels)
}

func (h *Hub) Unsubscribe(client *Client) {
    h.mu.Lock()
    defer h.mu.Unlock()

    for ch, clientsMap := range h.channels {
        if _, ok := clientsMap[client.ID]; ok {
            delete(clientsMap, client.ID)
            if len(clientsMap) == 0 {
                delete(h.channels, ch)
            }
        }
    }
    h.log.Debug("Client unsubscribed from all channels", "client", client.ID)
}

func (h *Hub) UnsubscribeFromChannel(client *Client, channel string) {
    h.mu.Lock()
    defer h.mu.Unlock()
    if clientsMap, ok := h.channels[channel]; ok {
        delete(clientsMap, client.ID)
        if len(clientsMap) == 0 {
            delete(h.channels, channel)
        }
    }
}

// SubscriberCount is the number of local clients on channel.
func (h *Hub) SubscriberCount(channel string) int {
    h.mu.RLock()
    defer h.mu.RUnlock()
    return len(h.channels[channel])
}

// localBroadcast never blocks: a client whose buffer is full misses the message.
func (h *Hub) localBroadcast(msg Message) {
    h.mu.RLock()
    defer h.mu.RUnlock()

    clientsMap, ok := h.channels[msg.Channel]
    if !ok {
        return
    }
    for _, client := range clientsMap {
        select {
        case client.Outbound <- msg:
        default:
            h.log.Warn("Dropping message to client; outbound buffer full", "client", client.ID, "channel", msg.Channel)
        }
    }
}

// BroadcastGlobal delivers to local subscribers and, when Redis is attached, to
// every other instance.
func (h *Hub) BroadcastGlobal(ctx context.Context, msg Message) error {
    if msg.Origin == "" {
        msg.Origin = h.id
    }
    if msg.SentAt.IsZero() {
        msg.SentAt = time.Now().UTC()
    }
    //1) always do local broadcast
    h.localBroadcast(msg)

    //2) if we have Redis, also publish so other nodes can broadcast
    if h.redisPubSub != nil {
        if err := h.redisPubSub.Publish(ctx, msg); err != nil {
            h.log.Warn("Failed to publish to Redis", "error", err)
            return err
        }
    }
    return nil
}

// Publish sends one event on channel.
func (h *Hub) Publish(ctx context.Context, channel, event string, data interface{}) error {
    return h.BroadcastGlobal(ctx, Message{Channel: channel, Event: event, Data: data})
}

func (h *Hub) fromRemote(msg Message) {
    if msg.Origin == h.id {
        return
    }
    h.localBroadcast(msg)
}
