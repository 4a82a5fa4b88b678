package ws_room

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/ozontech/allure-go/pkg/framework/provider"
	"github.com/ozontech/allure-go/pkg/framework/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfanalimd/watchqueue/internal/config"
)

const testGrace = 40 * time.Millisecond

// Hub state transitions never touch the socket, so test clients run
// with a nil conn and events are read straight off the send channel.
// Every subtest uses its own room to keep registries independent.
type WSHubUnitSuite struct {
	suite.Suite

	hub *Hub
}

func (s *WSHubUnitSuite) BeforeEach(t provider.T) {
	s.hub = NewHub(config.Realtime{LeaveGrace: testGrace}, slog.Default())
}

func (s *WSHubUnitSuite) client(roomID, userID, name string) *Client {
	return NewClient(s.hub, nil, roomID, userID, name, slog.Default())
}

func nextEvent(t provider.T, client *Client) Event {
	select {
	case payload := <-client.send:
		var event Event
		require.NoError(t, json.Unmarshal(payload, &event))
		return event
	case <-time.After(time.Second):
		require.Failf(t, "event timeout", "no event arrived for %s", client.userID)
		return nil
	}
}

func assertNoEvent(t provider.T, client *Client, wait time.Duration) {
	select {
	case payload, ok := <-client.send:
		if !ok {
			require.Failf(t, "channel closed", "send channel for %s closed unexpectedly", client.userID)
		}
		require.Failf(t, "unexpected event", "client %s received %s", client.userID, payload)
	case <-time.After(wait):
	}
}

func (s *WSHubUnitSuite) TestJoinAnnouncements(t provider.T) {
	t.Run("Should announce the first connection to others only", func(t provider.T) {
		alice := s.client("room-a", "u1", "Alice")
		s.hub.Register(alice)

		bob := s.client("room-a", "u2", "Bob")
		s.hub.Register(bob)

		event := nextEvent(t, alice)
		assert.Equal(t, EventUserJoined, event["type"])
		assert.Equal(t, "u2", event["user_id"])
		assert.Equal(t, "Bob", event["name"])
		assertNoEvent(t, bob, 20*time.Millisecond)
	})

	t.Run("Should stay silent when a second tab opens", func(t provider.T) {
		alice := s.client("room-b", "u1", "Alice")
		s.hub.Register(alice)

		secondTab := s.client("room-b", "u1", "Alice")
		s.hub.Register(secondTab)

		assertNoEvent(t, alice, 20*time.Millisecond)
	})
}

func (s *WSHubUnitSuite) TestLeaveGrace(t provider.T) {
	t.Run("Should announce user_left after the grace period", func(t provider.T) {
		alice := s.client("room-a", "u1", "Alice")
		bob := s.client("room-a", "u2", "Bob")
		s.hub.Register(alice)
		s.hub.Register(bob)
		nextEvent(t, alice) // bob's user_joined

		s.hub.Unregister(bob)

		event := nextEvent(t, alice)
		assert.Equal(t, EventUserLeft, event["type"])
		assert.Equal(t, "u2", event["user_id"])
	})

	t.Run("Should swallow user_left when the user reconnects in time", func(t provider.T) {
		alice := s.client("room-b", "u1", "Alice")
		bob := s.client("room-b", "u2", "Bob")
		s.hub.Register(alice)
		s.hub.Register(bob)
		nextEvent(t, alice)

		s.hub.Unregister(bob)
		reconnected := s.client("room-b", "u2", "Bob")
		s.hub.Register(reconnected)

		// No user_left and no repeat user_joined.
		assertNoEvent(t, alice, 3*testGrace)
	})

	t.Run("Should stay silent when another tab is still open", func(t provider.T) {
		alice := s.client("room-c", "u1", "Alice")
		tab1 := s.client("room-c", "u2", "Bob")
		tab2 := s.client("room-c", "u2", "Bob")
		s.hub.Register(alice)
		s.hub.Register(tab1)
		s.hub.Register(tab2)
		nextEvent(t, alice)

		s.hub.Unregister(tab1)

		assertNoEvent(t, alice, 3*testGrace)
	})

	t.Run("Should close the dropped connection's send channel", func(t provider.T) {
		bob := s.client("room-d", "u2", "Bob")
		s.hub.Register(bob)
		s.hub.Unregister(bob)

		_, ok := <-bob.send
		assert.False(t, ok)

		// Double unregister is a no-op, not a double close.
		s.hub.Unregister(bob)
	})
}

func (s *WSHubUnitSuite) TestPresence(t provider.T) {
	t.Run("Should dedup users across tabs and sort ids", func(t provider.T) {
		s.hub.Register(s.client("room-a", "u2", "Bob"))
		s.hub.Register(s.client("room-a", "u1", "Alice"))
		s.hub.Register(s.client("room-a", "u1", "Alice"))

		assert.Equal(t, []string{"u1", "u2"}, s.hub.OnlineUsers("room-a"))
	})

	t.Run("Should report an empty room as empty", func(t provider.T) {
		assert.Empty(t, s.hub.OnlineUsers("room-empty"))
	})
}

func (s *WSHubUnitSuite) TestBroadcast(t provider.T) {
	t.Run("Should skip the excluded sender", func(t provider.T) {
		alice := s.client("room-a", "u1", "Alice")
		bob := s.client("room-a", "u2", "Bob")
		s.hub.Register(alice)
		s.hub.Register(bob)
		nextEvent(t, alice)

		s.hub.Broadcast("room-a", NewEvent(EventVoteUpdate, map[string]interface{}{
			"item_id": "item-1",
		}), bob)

		event := nextEvent(t, alice)
		assert.Equal(t, EventVoteUpdate, event["type"])
		assert.Equal(t, "item-1", event["item_id"])
		assertNoEvent(t, bob, 20*time.Millisecond)
	})

	t.Run("Should scope events to the room", func(t provider.T) {
		alice := s.client("room-b", "u1", "Alice")
		other := s.client("room-x", "u9", "Eve")
		s.hub.Register(alice)
		s.hub.Register(other)

		s.hub.NotifyVoteCounts("room-b", "item-1", 3, 1, 2)

		event := nextEvent(t, alice)
		assert.Equal(t, EventVoteCounts, event["type"])
		assert.EqualValues(t, 3, event["upvotes"])
		assert.EqualValues(t, 2, event["vote_score"])
		assertNoEvent(t, other, 20*time.Millisecond)
	})

	t.Run("Should stamp type and timestamp on every event", func(t provider.T) {
		alice := s.client("room-c", "u1", "Alice")
		s.hub.Register(alice)

		s.hub.NotifyQueueUpdate("room-c", "add", map[string]interface{}{"id": "item-1"})

		event := nextEvent(t, alice)
		assert.Equal(t, EventQueueUpdate, event["type"])
		_, err := time.Parse(time.RFC3339, event["timestamp"].(string))
		assert.NoError(t, err)
	})
}

func (s *WSHubUnitSuite) TestTimings(t provider.T) {
	t.Run("Should carry configured heartbeat timings", func(t provider.T) {
		hub := NewHub(config.Realtime{
			PingInterval: 20 * time.Second,
			PongWait:     75 * time.Second,
			LeaveGrace:   5 * time.Second,
		}, slog.Default())

		assert.Equal(t, 75*time.Second, hub.pongWait)
		assert.Equal(t, 20*time.Second, hub.pingInterval)
		assert.Equal(t, 5*time.Second, hub.grace)
	})

	t.Run("Should default unset timings", func(t provider.T) {
		hub := NewHub(config.Realtime{}, slog.Default())

		assert.Equal(t, 60*time.Second, hub.pongWait)
		assert.Equal(t, 54*time.Second, hub.pingInterval)
		assert.Equal(t, 2*time.Second, hub.grace)
	})

	t.Run("Should keep pings inside the pong window", func(t provider.T) {
		hub := NewHub(config.Realtime{
			PingInterval: 2 * time.Minute,
			PongWait:     30 * time.Second,
		}, slog.Default())

		assert.Less(t, hub.pingInterval, hub.pongWait)
	})
}

func TestWSHubUnitSuite(t *testing.T) {
	suite.RunSuite(t, new(WSHubUnitSuite))
}
