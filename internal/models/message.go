package models

import "time"

// AttachmentType classifies an attachment by its MIME type.
type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentVideo    AttachmentType = "video"
	AttachmentAudio    AttachmentType = "audio"
	AttachmentDocument AttachmentType = "document"
	AttachmentOther    AttachmentType = "other"
)

// Message is one entry in a conversation's append-only ledger. Delivered
// and read are independent flag/timestamp pairs; deleted hides the row
// from every read path without removing it.
type Message struct {
	ID             int          `db:"id" json:"id"`
	ConversationID int          `db:"conversation_id" json:"conversation_id"`
	SenderID       int          `db:"sender_id" json:"sender_id"`
	Content        string       `db:"content" json:"content"`
	Delivered      bool         `db:"delivered" json:"delivered"`
	DeliveredAt    *time.Time   `db:"delivered_at" json:"delivered_at,omitempty"`
	Read           bool         `db:"is_read" json:"read"`
	ReadAt         *time.Time   `db:"read_at" json:"read_at,omitempty"`
	Deleted        bool         `db:"deleted" json:"-"`
	SentAt         time.Time    `db:"sent_at" json:"sent_at"`
	Attachments    []Attachment `db:"-" json:"attachments,omitempty"`
}

// Attachment is a file reference owned by exactly one message. The ledger
// records metadata only; the bytes live in the attachment store.
type Attachment struct {
	ID               int            `db:"id" json:"id"`
	MessageID        int            `db:"message_id" json:"message_id"`
	FileName         string         `db:"file_name" json:"file_name"`
	OriginalFileName string         `db:"original_file_name" json:"original_file_name"`
	MimeType         string         `db:"mime_type" json:"mime_type"`
	FileSize         int64          `db:"file_size" json:"file_size"`
	AttachmentType   AttachmentType `db:"attachment_type" json:"attachment_type"`
	ThumbnailName    *string        `db:"thumbnail_name" json:"thumbnail_name,omitempty"`
}

// AttachmentInput carries attachment metadata into a send operation.
type AttachmentInput struct {
	FileName         string
	OriginalFileName string
	MimeType         string
	FileSize         int64
	AttachmentType   AttachmentType
}
