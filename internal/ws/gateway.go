package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"realtime-service/internal/auth"
	"realtime-service/internal/observability"
	"realtime-service/internal/repositories"
)

const lookupTimeout = 5 * time.Second

// Gateway is the connection server: it upgrades the transport,
// authenticates the connection, admits it to presence, auto-joins its
// conversations and dispatches inbound events to the coordinators.
type Gateway struct {
	hub      *Hub
	verifier auth.TokenVerifier
	users    repositories.UserRepository
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	delivery *Delivery
}

// NewGateway constructs a Gateway.
func NewGateway(hub *Hub, verifier auth.TokenVerifier, users repositories.UserRepository, chats repositories.ChatRepository, messages repositories.MessageRepository) *Gateway {
	return &Gateway{
		hub:      hub,
		verifier: verifier,
		users:    users,
		chats:    chats,
		messages: messages,
		delivery: NewDelivery(hub, messages),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and runs its lifecycle in a goroutine.
// The bearer credential comes from handshake metadata: the Authorization
// header or the token query parameter.
func (g *Gateway) Handle(c *gin.Context) {
	_, span := otel.Tracer("realtime-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	token := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(token, "Bearer "); ok {
		token = after
	}
	if token == "" {
		token = c.Query("token")
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      uuid.NewString(),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := newClient(conn, info)
	observability.IncWSActive()

	go g.serve(client, token)
}

// serve authenticates the connection and, on success, runs the read loop
// until the transport closes. Authentication failures are fatal to the
// connection attempt: the error event is written before close.
func (g *Gateway) serve(client *Client, token string) {
	client.setState(StateAuthenticating)

	identity, err := g.verifier.Verify(token)
	if err != nil {
		g.rejectConnection(client, CodeInvalidCredential, "authentication failed")
		return
	}

	// The handshake request context dies when the HTTP handler returns, so
	// post-upgrade lookups run on their own contexts.
	lookupCtx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	user, err := g.users.GetUserByID(lookupCtx, identity.UserID)
	cancel()
	if err != nil {
		g.rejectConnection(client, CodeUnknownUser, "account not resolvable")
		return
	}

	client.user = user
	client.setState(StateAuthenticated)
	g.hub.Register(client)

	// Subscribe to every conversation the user participates in. Membership
	// was already authorized by the list itself.
	lookupCtx, cancel = context.WithTimeout(context.Background(), lookupTimeout)
	chatIDs, err := g.chats.GetUserChats(lookupCtx, user.ID)
	cancel()
	if err != nil {
		log.Printf("auto-join lookup failed user=%d: %v", user.ID, err)
		g.writeDirect(client, EvError, ErrorPayload{Message: "could not load conversations", Code: CodeInternalError})
	}
	for _, chatID := range chatIDs {
		g.hub.JoinRoom(client, chatID, false)
	}

	g.writeDirect(client, EvAuthenticated, AuthenticatedPayload{Success: true, User: user.Public()})
	client.setState(StateActive)

	_ = observability.PublishEvent(context.Background(), "ws_events.connections",
		observability.NewConnEvent("ws_connect", client.info.eventPayload(user.ID, "")),
		observability.BuildHeaders(client.info.RequestID, client.info.TraceID))
	observability.IncWSEvent("ws_connect", "in")

	go client.writePump()

	var closeReason string
	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error", "in")
			}
			break
		}
		g.dispatch(client, raw)
	}

	client.setState(StateClosing)
	g.hub.Unregister(client)
	client.close()
	client.conn.Close()
	observability.DecWSActive()
	observability.IncWSEvent("ws_disconnect", "in")
	_ = observability.PublishEvent(context.Background(), "ws_events.connections",
		observability.NewConnEvent("ws_disconnect", client.info.eventPayload(user.ID, closeReason)),
		observability.BuildHeaders(client.info.RequestID, client.info.TraceID))
}

// rejectConnection delivers the authentication error and closes. The
// connection never reaches the registry.
func (g *Gateway) rejectConnection(client *Client, code, message string) {
	g.writeDirect(client, EvError, ErrorPayload{Message: message, Code: code})
	client.close()
	client.conn.Close()
	observability.DecWSActive()
	_ = observability.PublishEvent(context.Background(), "ws_events.connections",
		observability.NewConnEvent("ws_rejected", client.info.eventPayload(0, code)),
		observability.BuildHeaders(client.info.RequestID, client.info.TraceID))
}

// writeDirect writes on the transport from the serve goroutine, used only
// before the write pump takes over or for the pre-close error.
func (g *Gateway) writeDirect(client *Client, event string, data any) {
	if payload := encodeEvent(event, data); payload != nil {
		if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("websocket write error: %v", err)
		}
	}
}

// dispatch decodes one inbound frame and routes it. Handler panics are
// contained at this boundary and surfaced as a generic internal error.
func (g *Gateway) dispatch(client *Client, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic handling ws event conn=%s: %v", client.ID(), r)
			client.sendError(CodeInternalError, "internal error", "")
		}
	}()

	ev, err := DecodeInbound(raw)
	if err != nil {
		client.sendError(CodeInvalidData, "invalid event", err.Error())
		return
	}
	observability.IncWSEvent(ev.Kind, "in")

	switch ev.Kind {
	case EvChatJoin:
		g.handleJoin(client, *ev.Join)
	case EvChatLeave:
		g.hub.LeaveRoom(client, ev.Leave.ChatID)
	case EvMessageSend:
		if err := g.delivery.Send(client, *ev.Send); err != nil {
			g.reportError(client, err)
		}
	case EvMessageTyping:
		if err := g.hub.SetTyping(client, ev.Typing.ChatID, ev.Typing.IsTyping); err != nil {
			g.reportError(client, err)
		}
	case EvMessageRead:
		g.handleRead(client, *ev.Read)
	case EvUserOnline:
		g.hub.AnnouncePresence(client, true)
	case EvUserOffline:
		g.hub.AnnouncePresence(client, false)
	}
}

// handleJoin re-verifies membership for explicit joins before subscribing.
func (g *Gateway) handleJoin(client *Client, p JoinPayload) {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	member, err := g.chats.IsParticipant(ctx, p.ChatID, client.user.ID)
	if err != nil {
		client.sendError(CodeInternalError, "could not verify membership", "")
		return
	}
	if !member {
		g.reportError(client, errForbidden)
		return
	}
	g.hub.JoinRoom(client, p.ChatID, true)
}

// handleRead records the receipt asynchronously; the reader alone hears
// about persistence failures.
func (g *Gateway) handleRead(client *Client, p ReadPayload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := g.messages.MarkRead(ctx, p.MessageID, client.user.ID); err != nil {
			log.Printf("mark read failed message=%d user=%d: %v", p.MessageID, client.user.ID, err)
			client.sendError(CodePersistenceFailure, "could not record read receipt", "")
		}
	}()
}

func (g *Gateway) reportError(client *Client, err error) {
	var ee *EventError
	if errors.As(err, &ee) {
		client.sendError(ee.Code, ee.Message, "")
		return
	}
	client.sendError(CodeInternalError, "internal error", "")
}
