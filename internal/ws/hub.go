package ws

import (
	"sync"
	"time"

	"realtime-service/internal/models"
	"realtime-service/internal/observability"
)

// presenceRecord exists iff the user owns at least one live connection.
type presenceRecord struct {
	user     models.User
	conns    map[string]struct{}
	onlineAt time.Time
}

// room groups the connections subscribed to one conversation. Rooms are
// created lazily on first join and deleted when the last member leaves.
type room struct {
	chatID  int
	members map[string]*Client  // conn id -> client
	typing  map[int]*typingEntry // user id -> active entry
}

// Hub owns every in-memory registry: connections, presence records, rooms
// and typing entries. All mutation goes through its methods under one
// mutex, which is the single-writer guarantee the broadcast invariants
// rely on. Broadcasting enqueues onto per-client buffered channels and
// never blocks, so holding the lock across a broadcast is safe.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	presence map[int]*presenceRecord
	rooms    map[int]*room

	typingTTL time.Duration
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:   make(map[string]*Client),
		presence:  make(map[int]*presenceRecord),
		rooms:     make(map[int]*room),
		typingTTL: typingTimeout,
	}
}

// OnlineUser is one entry of the presence snapshot.
type OnlineUser struct {
	User        models.PublicUser `json:"user"`
	OnlineAt    time.Time         `json:"onlineAt"`
	Connections int               `json:"connections"`
}

// Stats is the read-only snapshot exposed by the gateway.
type Stats struct {
	Connections int `json:"connections"`
	OnlineUsers int `json:"onlineUsers"`
	ActiveRooms int `json:"activeRooms"`
}

// Register indexes an authenticated connection and admits it to presence.
// The online broadcast fires only on the user's 0→1 connection transition.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.ID()] = c

	rec, ok := h.presence[c.user.ID]
	if !ok {
		rec = &presenceRecord{
			user:     c.user,
			conns:    make(map[string]struct{}),
			onlineAt: time.Now().UTC(),
		}
		h.presence[c.user.ID] = rec
		h.broadcastAllLocked(EvUserStatus, UserStatusPayload{UserID: c.user.ID, IsOnline: true}, "")
	}
	rec.conns[c.ID()] = struct{}{}
	observability.SetOnlineUsers(len(h.presence))
}

// Unregister runs the full disconnect pass: room teardown (with left
// broadcasts and typing cleanup) and presence removal, atomically under
// the hub lock. The offline broadcast fires only on the N→0 transition.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID()]; !ok {
		return
	}
	delete(h.clients, c.ID())

	for chatID, r := range h.rooms {
		if _, ok := r.members[c.ID()]; !ok {
			continue
		}
		h.removeFromRoomLocked(r, c)
		if len(r.members) == 0 {
			h.dropRoomLocked(chatID, r)
		}
	}

	if rec, ok := h.presence[c.user.ID]; ok {
		delete(rec.conns, c.ID())
		if len(rec.conns) == 0 {
			delete(h.presence, c.user.ID)
			lastSeen := time.Now().UTC()
			h.broadcastAllLocked(EvUserStatus, UserStatusPayload{UserID: c.user.ID, IsOnline: false, LastSeen: &lastSeen}, "")
		}
	}
	observability.SetOnlineUsers(len(h.presence))
}

// JoinRoom subscribes a connection to a conversation. Explicit joins
// announce the user to the rest of the room; the bulk auto-join at
// authentication passes announce=false. Re-joining is a no-op.
func (h *Hub) JoinRoom(c *Client, chatID int, announce bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[chatID]
	if !ok {
		r = &room{
			chatID:  chatID,
			members: make(map[string]*Client),
			typing:  make(map[int]*typingEntry),
		}
		h.rooms[chatID] = r
	}
	if _, ok := r.members[c.ID()]; ok {
		return
	}
	r.members[c.ID()] = c
	if announce {
		h.broadcastRoomLocked(r, EvChatUserJoined, RoomUserPayload{ChatID: chatID, User: c.user.Public()}, c.ID())
	}
}

// LeaveRoom unsubscribes a connection, announces the departure to the
// remainder and clears the user's typing entry in that room.
func (h *Hub) LeaveRoom(c *Client, chatID int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[chatID]
	if !ok {
		return
	}
	if _, ok := r.members[c.ID()]; !ok {
		return
	}
	h.removeFromRoomLocked(r, c)
	if len(r.members) == 0 {
		h.dropRoomLocked(chatID, r)
	}
}

// removeFromRoomLocked drops the connection from the room, stops its
// typing entry and emits the left broadcast to whoever remains.
func (h *Hub) removeFromRoomLocked(r *room, c *Client) {
	delete(r.members, c.ID())
	h.clearTypingLocked(r, c)
	h.broadcastRoomLocked(r, EvChatUserLeft, RoomUserPayload{ChatID: r.chatID, User: c.user.Public()}, c.ID())
}

// dropRoomLocked deletes an empty room, cancelling any timers that still
// reference it.
func (h *Hub) dropRoomLocked(chatID int, r *room) {
	for userID, entry := range r.typing {
		entry.timer.Stop()
		delete(r.typing, userID)
	}
	delete(h.rooms, chatID)
}

// InRoom reports whether the connection is subscribed to the conversation.
// This is the membership set the delivery coordinator checks against.
func (h *Hub) InRoom(connID string, chatID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[chatID]
	if !ok {
		return false
	}
	_, ok = r.members[connID]
	return ok
}

// IsOnline reports whether the user owns at least one live connection.
func (h *Hub) IsOnline(userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.presence[userID]
	return ok
}

// OnlineUserCount returns the number of users currently online.
func (h *Hub) OnlineUserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.presence)
}

// ConnectionCountFor returns the user's open connection count.
func (h *Hub) ConnectionCountFor(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if rec, ok := h.presence[userID]; ok {
		return len(rec.conns)
	}
	return 0
}

// ListOnlineUsers returns a point-in-time presence snapshot.
func (h *Hub) ListOnlineUsers() []OnlineUser {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make([]OnlineUser, 0, len(h.presence))
	for _, rec := range h.presence {
		users = append(users, OnlineUser{
			User:        rec.user.Public(),
			OnlineAt:    rec.onlineAt,
			Connections: len(rec.conns),
		})
	}
	return users
}

// GetStats returns the gateway's read-only statistics.
func (h *Hub) GetStats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		Connections: len(h.clients),
		OnlineUsers: len(h.presence),
		ActiveRooms: len(h.rooms),
	}
}

// AnnouncePresence re-broadcasts the user's status on an explicit
// user:online / user:offline event without touching connection-derived
// presence state.
func (h *Hub) AnnouncePresence(c *Client, online bool) {
	payload := UserStatusPayload{UserID: c.user.ID, IsOnline: online}
	if !online {
		lastSeen := time.Now().UTC()
		payload.LastSeen = &lastSeen
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.broadcastAllLocked(EvUserStatus, payload, "")
}

// BroadcastRoom emits an event to every connection subscribed to the
// conversation, excluding at most one connection id. Membership is read at
// emit time, never from stale captures.
func (h *Hub) BroadcastRoom(chatID int, event string, data any, excludeConnID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[chatID]
	if !ok {
		return
	}
	h.broadcastRoomLocked(r, event, data, excludeConnID)
}

// BroadcastMessageUpdated pushes a REST-originated edit into the room.
func (h *Hub) BroadcastMessageUpdated(msg models.Message) {
	h.BroadcastRoom(msg.ChatID, EvMessageUpdated, msg, "")
}

// BroadcastMessageDeleted pushes a REST-originated deletion into the room.
func (h *Hub) BroadcastMessageDeleted(chatID, messageID int) {
	h.BroadcastRoom(chatID, EvMessageDeleted, MessageDeletedPayload{MessageID: messageID, ChatID: chatID}, "")
}

func (h *Hub) broadcastRoomLocked(r *room, event string, data any, excludeConnID string) {
	payload := encodeEvent(event, data)
	for id, member := range r.members {
		if id == excludeConnID {
			continue
		}
		member.enqueue(payload)
	}
	observability.IncWSEvent(event, "out")
}

func (h *Hub) broadcastAllLocked(event string, data any, excludeConnID string) {
	payload := encodeEvent(event, data)
	for id, c := range h.clients {
		if id == excludeConnID {
			continue
		}
		c.enqueue(payload)
	}
	observability.IncWSEvent(event, "out")
}
