// API types for the messaging engine
package models

import (
	"time"

	"github.com/lancedesk/lancedesk/pkg/db"
)

// ========== Type aliases for database types ==========
// These allow other packages to use models.Message instead of db.Message

type User = db.User
type Project = db.Project
type Conversation = db.Conversation
type ConversationParticipant = db.ConversationParticipant
type Message = db.Message
type MessageReaction = db.MessageReaction

// ========== Constant aliases from db package ==========

// Message type constants
const (
	MessageTypeText   = db.MessageTypeText
	MessageTypeImage  = db.MessageTypeImage
	MessageTypeFile   = db.MessageTypeFile
	MessageTypeSystem = db.MessageTypeSystem
)

// User role constants
const (
	RoleFreelancer = db.RoleFreelancer
	RoleClient     = db.RoleClient
)

// ========== Directory summaries ==========

// UserSummary is the denormalized user shape embedded in conversation and
// message views.
type UserSummary struct {
	ID          int64      `json:"id"`
	DisplayName string     `json:"display_name"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	Role        string     `json:"role"`
	IsOnline    bool       `json:"is_online"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
}

// ProjectSummary is the denormalized project shape for linked conversations.
type ProjectSummary struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ========== Conversation views ==========

// ConversationView is a conversation as seen by one participant: the other
// side's summary, the viewer's own flags and unread count, and the most
// recent message if any.
type ConversationView struct {
	ID               int64           `json:"id"`
	Subject          string          `json:"subject,omitempty"`
	Project          *ProjectSummary `json:"project,omitempty"`
	OtherParticipant UserSummary     `json:"other_participant"`
	LastMessage      *MessageView    `json:"last_message,omitempty"`
	UnreadCount      int64           `json:"unread_count"`
	IsMuted          bool            `json:"is_muted"`
	IsArchived       bool            `json:"is_archived"`
	IsPinned         bool            `json:"is_pinned"`
	LastMessageAt    *time.Time      `json:"last_message_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// ========== Message views ==========

// AttachmentInfo carries the stored-attachment metadata of a message.
type AttachmentInfo struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// ReplyPreview is the single-level reply reference rendered inside a
// message view.
type ReplyPreview struct {
	ID         int64  `json:"id"`
	SenderID   int64  `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Content    string `json:"content"`
	Type       string `json:"type"`
}

// ReactionGroup aggregates reactions to one message by emoji.
type ReactionGroup struct {
	Emoji           string  `json:"emoji"`
	Count           int     `json:"count"`
	UserIDs         []int64 `json:"user_ids"`
	ReactedByViewer bool    `json:"reacted_by_viewer"`
}

// MessageView is a message with its sender summary, reply preview and
// grouped reactions.
type MessageView struct {
	ID             int64           `json:"id"`
	ConversationID int64           `json:"conversation_id"`
	Sender         UserSummary     `json:"sender"`
	Content        string          `json:"content"`
	Type           string          `json:"type"`
	Attachment     *AttachmentInfo `json:"attachment,omitempty"`
	ReplyTo        *ReplyPreview   `json:"reply_to,omitempty"`
	IsEdited       bool            `json:"is_edited"`
	EditedAt       *time.Time      `json:"edited_at,omitempty"`
	IsDeleted      bool            `json:"is_deleted"`
	IsRead         bool            `json:"is_read"`
	ReadAt         *time.Time      `json:"read_at,omitempty"`
	SentAt         time.Time       `json:"sent_at"`
	Reactions      []ReactionGroup `json:"reactions"`
}

// MessagesPage is one page of a conversation's history, newest page first
// but ascending within the page. HasPreviousPage means older messages exist
// beyond this page; HasNextPage means newer ones do.
type MessagesPage struct {
	Messages        []MessageView `json:"messages"`
	TotalCount      int64         `json:"total_count"`
	Page            int           `json:"page"`
	PageSize        int           `json:"page_size"`
	HasNextPage     bool          `json:"has_next_page"`
	HasPreviousPage bool          `json:"has_previous_page"`
}

// ========== Statistics ==========

// StatsView aggregates a user's messaging activity.
type StatsView struct {
	TotalConversations      int64              `json:"total_conversations"`
	ActiveConversations     int64              `json:"active_conversations"`
	ConversationsWithUnread int64              `json:"conversations_with_unread"`
	TotalMessages           int64              `json:"total_messages"`
	UnreadMessages          int64              `json:"unread_messages"`
	LastMessageAt           *time.Time         `json:"last_message_at,omitempty"`
	RecentConversations     []ConversationView `json:"recent_conversations"`
}

// ========== Requests ==========

// StartConversationRequest creates (or finds) a conversation with another
// user and, on first creation only, appends the initial message.
type StartConversationRequest struct {
	ParticipantID  int64  `json:"participant_id"`
	ProjectID      *int64 `json:"project_id,omitempty"`
	Subject        string `json:"subject,omitempty"`
	InitialMessage string `json:"initial_message"`
}

// AttachmentUpload is an inline attachment payload on a send request.
// Data is base64 in JSON transport.
type AttachmentUpload struct {
	Data     []byte `json:"data"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
}

// SendMessageRequest appends a message to a conversation.
type SendMessageRequest struct {
	Content          string            `json:"content"`
	Type             string            `json:"type,omitempty"`
	ReplyToMessageID *int64            `json:"reply_to_message_id,omitempty"`
	Attachment       *AttachmentUpload `json:"attachment,omitempty"`
}

// ConversationSettingsUpdate overwrites the caller's three per-conversation
// flags; there is no partial merge.
type ConversationSettingsUpdate struct {
	IsMuted    bool `json:"is_muted"`
	IsArchived bool `json:"is_archived"`
	IsPinned   bool `json:"is_pinned"`
}

// MessageSearchFilter narrows SearchMessages. The participant scope is
// always applied first and is not part of the filter.
type MessageSearchFilter struct {
	Query          string     `json:"query,omitempty"`
	ConversationID *int64     `json:"conversation_id,omitempty"`
	Type           string     `json:"type,omitempty"`
	FromDate       *time.Time `json:"from_date,omitempty"`
	ToDate         *time.Time `json:"to_date,omitempty"`
	Page           int        `json:"page"`
	PageSize       int        `json:"page_size"`
}
