// Database models for messages and reactions
package db

import "time"

// Message types
const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"
)

// DeletedMessageContent replaces the body of a soft-deleted message.
const DeletedMessageContent = "This message was deleted"

// MaxMessageLength bounds message bodies.
const MaxMessageLength = 5000

// Message belongs to exactly one conversation and one sender. Ordering
// within a conversation is (sent_at, id). Rows are never hard-deleted;
// deletion is a tombstone so ordering and reply references survive.
type Message struct {
	ID             int64 `json:"id" gorm:"primaryKey"`
	ConversationID int64 `json:"conversation_id" gorm:"index:idx_msg_conv_sent,priority:1;not null"`
	SenderID       int64 `json:"sender_id" gorm:"index;not null"`

	Content string `json:"content" gorm:"type:text;not null"`
	Type    string `json:"type" gorm:"size:20;not null;default:'text'"` // text, image, file, system

	// Attachment fields are set together or not at all.
	AttachmentURL  string `json:"attachment_url,omitempty" gorm:"size:500"`
	AttachmentName string `json:"attachment_name,omitempty" gorm:"size:255"`
	AttachmentMime string `json:"attachment_mime,omitempty" gorm:"size:100"`
	AttachmentSize int64  `json:"attachment_size,omitempty"`

	// Single-level reply reference; must point into the same conversation.
	ReplyToMessageID *int64 `json:"reply_to_message_id,omitempty" gorm:"index"`

	IsEdited bool       `json:"is_edited" gorm:"default:false"`
	EditedAt *time.Time `json:"edited_at,omitempty"`

	IsDeleted bool       `json:"is_deleted" gorm:"default:false"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// Per-message read flag; the participant's last_read_at watermark is
	// the cheap path for unread counts and both are updated together.
	IsRead bool       `json:"is_read" gorm:"default:false"`
	ReadAt *time.Time `json:"read_at,omitempty"`

	SentAt    time.Time `json:"sent_at" gorm:"index:idx_msg_conv_sent,priority:2;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (*Message) TableName() string {
	return "messages"
}

// HasAttachment reports whether the attachment fields are populated.
func (m *Message) HasAttachment() bool {
	return m.AttachmentURL != ""
}

// MessageReaction is one emoji reaction by one user to one message. The
// unique index enforces at most one reaction per (message, user, emoji).
type MessageReaction struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	MessageID int64     `json:"message_id" gorm:"uniqueIndex:idx_msg_user_emoji;not null"`
	UserID    int64     `json:"user_id" gorm:"uniqueIndex:idx_msg_user_emoji;not null"`
	Emoji     string    `json:"emoji" gorm:"uniqueIndex:idx_msg_user_emoji;size:32;not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (MessageReaction) TableName() string {
	return "message_reactions"
}
