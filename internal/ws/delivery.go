package ws

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"realtime-service/internal/models"
	"realtime-service/internal/observability"
	"realtime-service/internal/repositories"
)

const persistTimeout = 10 * time.Second

// Delivery coordinates the optimistic broadcast-then-persist protocol:
// message:new goes out immediately with a server-issued temp id, the store
// write happens off the hub lock, and exactly one of message:db_saved /
// message:save_failed follows for that temp id.
type Delivery struct {
	hub      *Hub
	messages repositories.MessageRepository
}

// NewDelivery constructs the coordinator.
func NewDelivery(hub *Hub, messages repositories.MessageRepository) *Delivery {
	return &Delivery{hub: hub, messages: messages}
}

// Send validates the request, broadcasts the provisional message to the
// whole room (sender included, so the durable copy is deduplicated by temp
// id client-side) and schedules persistence. Precondition failures return
// an *EventError and nothing is broadcast.
func (d *Delivery) Send(c *Client, p SendPayload) error {
	if !d.hub.InRoom(c.ID(), p.ChatID) {
		return errForbidden
	}
	content := strings.TrimSpace(p.Content)
	if content == "" {
		return &EventError{Code: CodeInvalidData, Message: "message content is empty"}
	}
	messageType := p.MessageType
	if messageType == "" {
		messageType = "text"
	}

	tempID := "temp-" + uuid.NewString()
	provisional := models.OutgoingMessage{
		ID:            tempID,
		ChatID:        p.ChatID,
		SenderID:      c.user.ID,
		SenderName:    c.user.Username,
		Content:       content,
		MessageType:   messageType,
		AttachmentURL: p.AttachmentURL,
		ReplyToID:     p.ReplyToID,
		CreatedAt:     time.Now().UTC(),
		Provisional:   true,
	}
	d.hub.BroadcastRoom(p.ChatID, EvMessageNew, provisional, "")

	params := repositories.NewMessageParams{
		ChatID:        p.ChatID,
		SenderID:      c.user.ID,
		Content:       content,
		MessageType:   messageType,
		AttachmentURL: p.AttachmentURL,
		ReplyToID:     p.ReplyToID,
	}
	go d.persist(tempID, params)
	return nil
}

// persist runs the store write on its own context: the send was already
// acknowledged optimistically and must reach a terminal outcome even if
// the sender disconnects meanwhile. Room membership is re-read at
// broadcast time inside the hub.
func (d *Delivery) persist(tempID string, params repositories.NewMessageParams) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	ctx, span := otel.Tracer("realtime-service/ws").Start(ctx, "message.persist")
	span.SetAttributes(attribute.Int("chat.id", params.ChatID), attribute.String("message.temp_id", tempID))
	defer span.End()

	msg, err := d.messages.CreateMessage(ctx, params)
	if err != nil {
		log.Printf("message persist failed chat=%d temp_id=%s: %v", params.ChatID, tempID, err)
		span.RecordError(err)
		observability.IncMessageDelivery("failed")
		d.hub.BroadcastRoom(params.ChatID, EvMessageSaveFailed, SaveFailedPayload{TempID: tempID, Error: err.Error()}, "")
		return
	}

	observability.IncMessageDelivery("persisted")
	d.hub.BroadcastRoom(params.ChatID, EvMessageSaved, SavedPayload{TempID: tempID, RealMessage: msg}, "")

	_ = observability.PublishEvent(ctx, "realtime.messages", observability.EventEnvelope{
		EventType:  "message_events",
		EventName:  "message_persisted",
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:    msg,
	}, nil)
}
