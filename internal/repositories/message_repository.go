package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"realtime-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// NewMessageParams carries the snapshot of a send request handed to the
// store after the provisional broadcast.
type NewMessageParams struct {
	ChatID        int
	SenderID      int
	Content       string
	MessageType   string
	AttachmentURL *string
	ReplyToID     *int
}

// MessageRepository is the durable message store consumed by the
// delivery coordinator.
type MessageRepository interface {
	CreateMessage(ctx context.Context, params NewMessageParams) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	MarkRead(ctx context.Context, messageID int, userID int) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage persists a message and returns the durable row.
func (r *MessageRepo) CreateMessage(ctx context.Context, params NewMessageParams) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (chat_id, sender_id, content, message_type, attachment_url, reply_to_id)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, chat_id, sender_id, content, message_type, attachment_url, reply_to_id, created_at`,
		params.ChatID, params.SenderID, params.Content, params.MessageType, params.AttachmentURL, params.ReplyToID).
		StructScan(&msg)
	return msg, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT id, chat_id, sender_id, content, message_type, attachment_url, reply_to_id, created_at FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// MarkRead records a read receipt; repeated reads are no-ops.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID int, userID int) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id) VALUES ($1, $2)
        ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, userID)
	if err != nil {
		return err
	}
	if _, err := res.RowsAffected(); err != nil {
		return err
	}
	return nil
}
