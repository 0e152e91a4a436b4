package ws

import (
	"time"

	"realtime-service/internal/observability"
)

// typingTimeout is the inactivity window after which a typing entry
// expires server-side.
const typingTimeout = 3 * time.Second

// typingEntry is the at-most-one "is composing" record per (user, chat).
// connID is the connection that armed it; only that connection's
// disconnect clears it, so a second device leaving does not cancel an
// active indicator.
type typingEntry struct {
	userID int
	connID string
	timer  *time.Timer
}

// SetTyping drives the idle/typing state machine for the client's user in
// the given conversation. Starting broadcasts once and arms the timer;
// repeated starts within the window re-arm without re-broadcasting;
// stopping while idle is a silent no-op.
func (h *Hub) SetTyping(c *Client, chatID int, isTyping bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[chatID]
	if !ok {
		return errForbidden
	}
	if _, ok := r.members[c.ID()]; !ok {
		return errForbidden
	}

	entry := r.typing[c.user.ID]
	if isTyping {
		if entry != nil {
			// Idempotent refresh, no re-broadcast. The old handle may have
			// fired already and be waiting on the lock, so the entry is
			// replaced rather than reset in place: the stale callback then
			// fails its identity check and stays silent.
			entry.timer.Stop()
			h.armTypingLocked(r, chatID, entry.connID, c.user.ID)
			return nil
		}
		h.armTypingLocked(r, chatID, c.ID(), c.user.ID)
		h.broadcastRoomLocked(r, EvTypingUpdate, h.typingPayload(chatID, c, true), c.ID())
		return nil
	}

	if entry == nil {
		return nil
	}
	entry.timer.Stop()
	delete(r.typing, c.user.ID)
	h.broadcastRoomLocked(r, EvTypingUpdate, h.typingPayload(chatID, c, false), c.ID())
	return nil
}

// armTypingLocked installs a fresh entry with its own timer handle. Every
// arm and re-arm goes through here so exactly one live handle exists per
// (user, chat).
func (h *Hub) armTypingLocked(r *room, chatID int, connID string, userID int) {
	entry := &typingEntry{userID: userID, connID: connID}
	entry.timer = time.AfterFunc(h.typingTTL, func() {
		h.expireTyping(chatID, entry)
	})
	r.typing[userID] = entry
}

// expireTyping is the timer callback. The entry identity check guards the
// race between cancellation and firing: a stopped-and-replaced or already
// cleared entry never produces a second broadcast.
func (h *Hub) expireTyping(chatID int, entry *typingEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[chatID]
	if !ok || r.typing[entry.userID] != entry {
		return
	}
	delete(r.typing, entry.userID)
	observability.IncTypingExpiry()

	payload := TypingUpdatePayload{
		ChatID:    chatID,
		UserID:    entry.userID,
		IsTyping:  false,
		Timestamp: time.Now().UTC(),
	}
	if rec, ok := h.presence[entry.userID]; ok {
		payload.UserName = rec.user.Username
	}
	h.broadcastRoomLocked(r, EvTypingUpdate, payload, entry.connID)
}

// clearTypingLocked removes the user's typing entry on leave/disconnect,
// provided the departing connection owns it.
func (h *Hub) clearTypingLocked(r *room, c *Client) {
	entry, ok := r.typing[c.user.ID]
	if !ok || entry.connID != c.ID() {
		return
	}
	entry.timer.Stop()
	delete(r.typing, c.user.ID)
	h.broadcastRoomLocked(r, EvTypingUpdate, h.typingPayload(r.chatID, c, false), c.ID())
}

func (h *Hub) typingPayload(chatID int, c *Client, isTyping bool) TypingUpdatePayload {
	return TypingUpdatePayload{
		ChatID:    chatID,
		UserID:    c.user.ID,
		UserName:  c.user.Username,
		IsTyping:  isTyping,
		Timestamp: time.Now().UTC(),
	}
}
