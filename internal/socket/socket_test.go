package socket

import (
    "context"
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    "github.com/google/uuid"
    "github.com/redis/go-redis/v9"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/kaar-org/kaar-backend/internal/logger"
)

func detachedClient(hub *Hub, channels ...string) *Client {
    return NewClient(nil, hub, uuid.New(), nil, logger.NewNop(), channels)
}

func receive(t *testing.T, c *Client) Message {
    t.Helper()
    select {
    case msg := <-c.Outbound:
        return msg
    case <-time.After(2 * time.Second):
        t.Fatal("timed out waiting for message")
        return Message{}
    }
}

func assertNothing(t *testing.T, c *Client) {
    t.Helper()
    select {
    case msg := <-c.Outbound:
        t.Fatalf("unexpected message %+v", msg)
    case <-time.After(100 * time.Millisecond):
    }
}

func TestHubDeliversOnlyToChannelSubscribers(t *testing.T) {
    hub := NewHub(logger.NewNop())
    alice := detachedClient(hub, UserChannel("alice"))
    bob := detachedClient(hub, UserChannel("bob"))
    hub.Subscribe(alice, []string{UserChannel("alice")})
    hub.Subscribe(bob, []string{UserChannel("bob")})

    require.NoError(t, hub.Publish(context.Background(), UserChannel("alice"), "chat_updated", map[string]string{"chatId": "c1"}))

    msg := receive(t, alice)
    assert.Equal(t, "user:alice", msg.Channel)
    assert.Equal(t, "chat_updated", msg.Event)
    assert.False(t, msg.SentAt.IsZero())
    assertNothing(t, bob)
}

func TestHubUnsubscribe(t *testing.T) {
    hub := NewHub(logger.NewNop())
    c := detachedClient(hub, "user:a", "user:b")
    hub.Subscribe(c, []string{"user:a", "user:b"})
    assert.Equal(t, 1, hub.SubscriberCount("user:a"))

    hub.UnsubscribeFromChannel(c, "user:a")
    assert.Equal(t, 0, hub.SubscriberCount("user:a"))
    assert.Equal(t, 1, hub.SubscriberCount("user:b"))

    hub.Unsubscribe(c)
    assert.Equal(t, 0, hub.SubscriberCount("user:b"))
}

func TestHubDropsWhenBufferFull(t *testing.T) {
    hub := NewHub(logger.NewNop())
    c := detachedClient(hub, "user:a")
    hub.Subscribe(c, []string{"user:a"})
    for i := 0; i < OutboundChanBuffer+10; i++ {
        require.NoError(t, hub.Publish(context.Background(), "user:a", "tick", i))
    }
    assert.Len(t, c.Outbound, OutboundChanBuffer)
}

func TestClientCanJoinOnlyAllowedChannels(t *testing.T) {
    c := detachedClient(NewHub(logger.NewNop()), "user:alice")
    assert.True(t, c.CanJoin("user:alice"))
    assert.False(t, c.CanJoin("user:bob"))
}

func TestRedisPubSubRelaysAcrossHubs(t *testing.T) {
    mr := miniredis.RunT(t)
    log := logger.NewNop()

    newNode := func() (*Hub, *RedisPubSub) {
        client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
        t.Cleanup(func() { _ = client.Close() })
        hub := NewHub(log)
        rp := NewRedisPubSub(log, client, "kaar_hub_broadcast")
        require.NoError(t, rp.StartSubscriber(hub))
        hub.SetRedisPubSub(rp)
        t.Cleanup(rp.Stop)
        return hub, rp
    }
    hubA, _ := newNode()
    hubB, _ := newNode()

    onA := detachedClient(hubA, "user:alice")
    onB := detachedClient(hubB, "user:alice")
    hubA.Subscribe(onA, []string{"user:alice"})
    hubB.Subscribe(onB, []string{"user:alice"})

    require.NoError(t, hubA.Publish(context.Background(), "user:alice", "chat_updated", "c1"))

    assert.Equal(t, "chat_updated", receive(t, onA).Event)
    assert.Equal(t, "chat_updated", receive(t, onB).Event)
    assertNothing(t, onA)
}

func TestPubSubMessageRoundTrip(t *testing.T) {
    raw, err := encodePubSubMessage(Message{Channel: "user:a", Event: "e", Origin: "n1"})
    require.NoError(t, err)
    msg, err := decodePubSubMessage(raw)
    require.NoError(t, err)
    assert.Equal(t, "user:a", msg.Channel)
    assert.Equal(t, "n1", msg.Origin)

    _, err = decodePubSubMessage("{")
    assert.Error(t, err)
}
