package ws_room

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/irfanalimd/watchqueue/internal/config"
)

const (
	EventUserJoined       = "user_joined"
	EventUserLeft         = "user_left"
	EventPresence         = "presence"
	EventHeartbeat        = "heartbeat"
	EventVoteUpdate       = "vote_update"
	EventVoteCounts       = "vote_counts"
	EventQueueUpdate      = "queue_update"
	EventSelection        = "selection"
	EventVotingRoundStart = "voting_round_start"
)

// Event is the wire shape: a flat JSON object with at least "type" and
// "timestamp".
type Event map[string]interface{}

func NewEvent(kind string, fields map[string]interface{}) Event {
	event := Event{
		"type":      kind,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range fields {
		event[k] = v
	}
	return event
}

type roomUser struct {
	roomID string
	userID string
}

// Hub tracks every room's connections and the derived per-user online
// state. A user with two tabs open is one online user; user_joined and
// user_left fire on the offline/online edges only, with departures
// debounced by a grace timer so a page refresh stays silent.
type Hub struct {
	mu      sync.Mutex
	rooms   map[string]map[*Client]bool
	online  map[roomUser]int
	pending map[roomUser]*time.Timer

	grace        time.Duration
	pongWait     time.Duration
	pingInterval time.Duration
	logger       *slog.Logger
}

func NewHub(cfg config.Realtime, logger *slog.Logger) *Hub {
	grace := cfg.LeaveGrace
	if grace <= 0 {
		grace = 2 * time.Second
	}
	pongWait := cfg.PongWait
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}
	pingInterval := cfg.PingInterval
	if pingInterval <= 0 || pingInterval >= pongWait {
		pingInterval = (pongWait * 9) / 10
	}
	return &Hub{
		rooms:        make(map[string]map[*Client]bool),
		online:       make(map[roomUser]int),
		pending:      make(map[roomUser]*time.Timer),
		grace:        grace,
		pongWait:     pongWait,
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// Register adds the connection and announces the user if this is their
// first live connection to the room. A reconnect within the leave grace
// cancels the pending user_left without re-announcing.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()

	if _, ok := h.rooms[client.roomID]; !ok {
		h.rooms[client.roomID] = make(map[*Client]bool)
	}
	h.rooms[client.roomID][client] = true

	key := roomUser{client.roomID, client.userID}
	h.online[key]++
	firstConn := h.online[key] == 1

	announce := false
	if timer, ok := h.pending[key]; ok {
		timer.Stop()
		delete(h.pending, key)
	} else if firstConn {
		announce = true
	}

	h.mu.Unlock()

	h.logger.Info("client registered",
		"room_id", client.roomID, "user_id", client.userID)

	if announce {
		h.Broadcast(client.roomID, NewEvent(EventUserJoined, map[string]interface{}{
			"user_id": client.userID,
			"name":    client.name,
		}), client)
	}
}

// Unregister drops the connection. When it was the user's last one, a
// grace timer is armed; user_left goes out only if the user is still
// offline when it fires.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()

	room, ok := h.rooms[client.roomID]
	if !ok || !room[client] {
		h.mu.Unlock()
		return
	}
	delete(room, client)
	if len(room) == 0 {
		delete(h.rooms, client.roomID)
	}
	close(client.send)

	key := roomUser{client.roomID, client.userID}
	h.online[key]--
	lastConn := h.online[key] <= 0
	if lastConn {
		delete(h.online, key)
		if timer, ok := h.pending[key]; ok {
			timer.Stop()
		}
		h.pending[key] = time.AfterFunc(h.grace, func() {
			h.leaveExpired(key, client.name)
		})
	}

	h.mu.Unlock()

	h.logger.Info("client unregistered",
		"room_id", client.roomID, "user_id", client.userID)
}

// leaveExpired runs when a grace timer fires. State may have moved on
// since the timer was armed, so online status is rechecked under the
// lock before anything is broadcast.
func (h *Hub) leaveExpired(key roomUser, name string) {
	h.mu.Lock()
	if _, ok := h.pending[key]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.pending, key)
	if h.online[key] > 0 {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	h.Broadcast(key.roomID, NewEvent(EventUserLeft, map[string]interface{}{
		"user_id": key.userID,
		"name":    name,
	}), nil)
}

// Broadcast fans the event out to every connection in the room, minus
// the excluded sender. A connection with a full send buffer is dropped
// like a disconnect.
func (h *Hub) Broadcast(roomID string, event Event, exclude *Client) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshal event", "error", err)
		return
	}

	h.mu.Lock()
	var stale []*Client
	for client := range h.rooms[roomID] {
		if client == exclude {
			continue
		}
		select {
		case client.send <- payload:
		default:
			stale = append(stale, client)
		}
	}
	h.mu.Unlock()

	for _, client := range stale {
		h.Unregister(client)
	}
}

// sendTo queues an event for a single connection. The registry check
// under the lock keeps it from racing a close in Unregister.
func (h *Hub) sendTo(client *Client, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.rooms[client.roomID][client] {
		return
	}
	select {
	case client.send <- payload:
	default:
	}
}

// OnlineUsers lists the distinct online user ids in the room, sorted
// for stable output.
func (h *Hub) OnlineUsers(roomID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	seen := make(map[string]bool)
	users := make([]string, 0)
	for client := range h.rooms[roomID] {
		if !seen[client.userID] {
			seen[client.userID] = true
			users = append(users, client.userID)
		}
	}
	sort.Strings(users)
	return users
}

func (h *Hub) presenceEvent(roomID string) Event {
	return NewEvent(EventPresence, map[string]interface{}{
		"users": h.OnlineUsers(roomID),
	})
}

// NotifyVoteCounts pushes refreshed denormalized counts to the room.
// Called by HTTP controllers after a vote mutation lands.
func (h *Hub) NotifyVoteCounts(roomID, itemID string, upvotes, downvotes, score int) {
	h.Broadcast(roomID, NewEvent(EventVoteCounts, map[string]interface{}{
		"item_id":    itemID,
		"upvotes":    upvotes,
		"downvotes":  downvotes,
		"vote_score": score,
	}), nil)
}

// NotifyQueueUpdate announces a queue mutation (add, update, remove).
func (h *Hub) NotifyQueueUpdate(roomID, action string, item interface{}) {
	h.Broadcast(roomID, NewEvent(EventQueueUpdate, map[string]interface{}{
		"action": action,
		"item":   item,
	}), nil)
}

// NotifySelection announces the picked item to the whole room.
func (h *Hub) NotifySelection(roomID, itemID, title, selectedBy string) {
	h.Broadcast(roomID, NewEvent(EventSelection, map[string]interface{}{
		"item_id":     itemID,
		"title":       title,
		"selected_by": selectedBy,
	}), nil)
}

// NotifyVotingRound announces a started voting round.
func (h *Hub) NotifyVotingRound(roomID string, durationSeconds int, startedBy string) {
	h.Broadcast(roomID, NewEvent(EventVotingRoundStart, map[string]interface{}{
		"duration_seconds": durationSeconds,
		"started_by":       startedBy,
	}), nil)
}
