package models

import "time"

// Message is the durable message row.
type Message struct {
	ID            int       `db:"id" json:"id"`
	ChatID        int       `db:"chat_id" json:"chatId"`
	SenderID      int       `db:"sender_id" json:"senderId"`
	Content       string    `db:"content" json:"content"`
	MessageType   string    `db:"message_type" json:"messageType"`
	AttachmentURL *string   `db:"attachment_url" json:"attachmentUrl,omitempty"`
	ReplyToID     *int      `db:"reply_to_id" json:"replyToId,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// OutgoingMessage is the wire shape for message:new. A provisional message
// carries the server-issued TempID as its id; after reconciliation clients
// swap it for the durable row keyed by the same temp id.
type OutgoingMessage struct {
	ID            string    `json:"id"`
	ChatID        int       `json:"chatId"`
	SenderID      int       `json:"senderId"`
	SenderName    string    `json:"senderName"`
	Content       string    `json:"content"`
	MessageType   string    `json:"messageType"`
	AttachmentURL *string   `json:"attachmentUrl,omitempty"`
	ReplyToID     *int      `json:"replyToId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	Provisional   bool      `json:"provisional,omitempty"`
}
