package ws_room

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	roomID string
	userID string
	name   string
	logger *slog.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, roomID, userID, name string, logger *slog.Logger) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		roomID: roomID,
		userID: userID,
		name:   name,
		logger: logger,
	}
}

// Serve registers the client, pushes the presence snapshot to the new
// connection and runs the pumps. Blocks until the read pump exits.
func (c *Client) Serve() {
	c.hub.Register(c)
	c.deliver(c.hub.presenceEvent(c.roomID))

	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("read failed",
					"room_id", c.roomID, "user_id", c.userID, "error", err)
			}
			return
		}

		var msg map[string]interface{}
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			// Browser clients cannot see protocol pings; mirror the
			// heartbeat as a JSON event.
			if payload, err := json.Marshal(NewEvent(EventHeartbeat, nil)); err == nil {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			}
		}
	}
}

// deliver queues an event for this connection only.
func (c *Client) deliver(event Event) {
	c.hub.sendTo(c, event)
}

// handleMessage relays client messages to the room. The hub never
// mutates state from the socket; clients call the HTTP API for that
// and use these messages for low-latency signaling.
func (c *Client) handleMessage(msg map[string]interface{}) {
	kind, _ := msg["type"].(string)

	switch kind {
	case "pong":
		// Liveness only.

	case "vote":
		c.hub.Broadcast(c.roomID, NewEvent(EventVoteUpdate, map[string]interface{}{
			"item_id": msg["item_id"],
			"user_id": c.userID,
			"vote":    msg["vote"],
		}), c)

	case "queue_add":
		c.hub.Broadcast(c.roomID, NewEvent(EventQueueUpdate, map[string]interface{}{
			"action":   "add",
			"item_id":  msg["item_id"],
			"title":    msg["title"],
			"added_by": c.userID,
		}), c)

	case "selection":
		c.hub.Broadcast(c.roomID, NewEvent(EventSelection, map[string]interface{}{
			"item_id":     msg["item_id"],
			"title":       msg["title"],
			"selected_by": c.userID,
		}), nil)

	case "voting_round_start":
		c.hub.Broadcast(c.roomID, NewEvent(EventVotingRoundStart, map[string]interface{}{
			"duration_seconds": msg["duration_seconds"],
			"started_by":       c.userID,
		}), nil)

	case "get_presence":
		c.deliver(c.hub.presenceEvent(c.roomID))
	}
}
