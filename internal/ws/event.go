package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"realtime-service/internal/models"
)

// Outbound event names.
const (
	EvAuthenticated     = "authenticated"
	EvUserStatus        = "user:status"
	EvChatUserJoined    = "chat:user:joined"
	EvChatUserLeft      = "chat:user:left"
	EvMessageNew        = "message:new"
	EvMessageSaved      = "message:db_saved"
	EvMessageSaveFailed = "message:save_failed"
	EvTypingUpdate      = "message:typing:update"
	EvMessageUpdated    = "message:updated"
	EvMessageDeleted    = "message:deleted"
	EvError             = "error"
)

// Inbound event names. These form a closed set: DecodeInbound rejects
// anything else so dispatch can switch exhaustively.
const (
	EvChatJoin      = "chat:join"
	EvChatLeave     = "chat:leave"
	EvMessageSend   = "message:send"
	EvMessageTyping = "message:typing"
	EvMessageRead   = "message:read"
	EvUserOnline    = "user:online"
	EvUserOffline   = "user:offline"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinPayload struct {
	ChatID int `json:"chatId"`
}

type SendPayload struct {
	ChatID        int     `json:"chatId"`
	Content       string  `json:"content"`
	MessageType   string  `json:"messageType,omitempty"`
	AttachmentURL *string `json:"attachmentUrl,omitempty"`
	ReplyToID     *int    `json:"replyToId,omitempty"`
}

type TypingPayload struct {
	ChatID   int  `json:"chatId"`
	IsTyping bool `json:"isTyping"`
}

type ReadPayload struct {
	MessageID int `json:"messageId"`
	ChatID    int `json:"chatId"`
}

// Inbound is one decoded client event. Exactly the payload field matching
// Kind is set.
type Inbound struct {
	Kind   string
	Join   *JoinPayload
	Leave  *JoinPayload
	Send   *SendPayload
	Typing *TypingPayload
	Read   *ReadPayload
}

// DecodeInbound parses a client frame into the closed inbound event set.
func DecodeInbound(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Inbound{}, fmt.Errorf("malformed event frame: %w", err)
	}

	ev := Inbound{Kind: env.Event}
	var err error
	switch env.Event {
	case EvChatJoin:
		ev.Join = &JoinPayload{}
		err = json.Unmarshal(env.Data, ev.Join)
	case EvChatLeave:
		ev.Leave = &JoinPayload{}
		err = json.Unmarshal(env.Data, ev.Leave)
	case EvMessageSend:
		ev.Send = &SendPayload{}
		err = json.Unmarshal(env.Data, ev.Send)
	case EvMessageTyping:
		ev.Typing = &TypingPayload{}
		err = json.Unmarshal(env.Data, ev.Typing)
	case EvMessageRead:
		ev.Read = &ReadPayload{}
		err = json.Unmarshal(env.Data, ev.Read)
	case EvUserOnline, EvUserOffline:
		// no payload
	default:
		return Inbound{}, fmt.Errorf("unknown event %q", env.Event)
	}
	if err != nil {
		return Inbound{}, fmt.Errorf("malformed %s payload: %w", env.Event, err)
	}
	return ev, nil
}

// encodeEvent marshals an outbound event frame. Payloads are built
// server-side, so a marshal failure is a programming error and yields nil.
func encodeEvent(event string, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	payload, err := json.Marshal(envelope{Event: event, Data: raw})
	if err != nil {
		return nil
	}
	return payload
}

type AuthenticatedPayload struct {
	Success bool              `json:"success"`
	User    models.PublicUser `json:"user"`
}

type UserStatusPayload struct {
	UserID   int        `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type RoomUserPayload struct {
	ChatID int               `json:"chatId"`
	User   models.PublicUser `json:"user"`
}

type SavedPayload struct {
	TempID      string         `json:"tempId"`
	RealMessage models.Message `json:"realMessage"`
}

type SaveFailedPayload struct {
	TempID string `json:"tempId"`
	Error  string `json:"error"`
}

type TypingUpdatePayload struct {
	ChatID    int       `json:"chatId"`
	UserID    int       `json:"userId"`
	UserName  string    `json:"userName"`
	IsTyping  bool      `json:"isTyping"`
	Timestamp time.Time `json:"timestamp"`
}

type MessageDeletedPayload struct {
	MessageID int `json:"messageId"`
	ChatID    int `json:"chatId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}
