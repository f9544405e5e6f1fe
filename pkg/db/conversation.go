// Database models for conversations
package db

import (
	"fmt"
	"time"
)

// Conversation is a durable thread between exactly two users, optionally
// scoped to a project. The pair is stored normalized (UserAID < UserBID);
// display roles are resolved from the directory at view time, never from the
// column a user landed in.
type Conversation struct {
	ID int64 `json:"id" gorm:"primaryKey"`

	// Normalized pair: UserAID always holds the lower user id.
	UserAID int64 `json:"user_a_id" gorm:"index;not null"`
	UserBID int64 `json:"user_b_id" gorm:"index;not null"`

	// PairKey is "a:b:p" with p=0 when no project is linked. A unique index
	// on a single column sidesteps NULLs being distinct in SQL unique
	// indexes, so the no-project scope dedups too.
	PairKey string `json:"-" gorm:"uniqueIndex;size:64;not null"`

	ProjectID *int64 `json:"project_id,omitempty" gorm:"index"`
	Subject   string `json:"subject,omitempty" gorm:"size:200"`

	// Conversation-level flags kept for backward compatibility. The
	// per-participant flags on ConversationParticipant are authoritative
	// for a given user's view.
	IsActive   bool `json:"is_active" gorm:"default:true"`
	IsArchived bool `json:"is_archived" gorm:"default:false"`
	IsPinned   bool `json:"is_pinned" gorm:"default:false"`
	IsMuted    bool `json:"is_muted" gorm:"default:false"`

	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// OtherUserID returns the participant opposite to userID, or 0 if userID is
// not part of the pair.
func (c *Conversation) OtherUserID(userID int64) int64 {
	switch userID {
	case c.UserAID:
		return c.UserBID
	case c.UserBID:
		return c.UserAID
	}
	return 0
}

// HasParticipant reports whether userID occupies either slot of the pair.
func (c *Conversation) HasParticipant(userID int64) bool {
	return userID == c.UserAID || userID == c.UserBID
}

// NormalizePair orders two user ids into the (a, b) slot convention.
func NormalizePair(x, y int64) (a, b int64) {
	if x < y {
		return x, y
	}
	return y, x
}

// PairKeyFor builds the dedup key for a pair and an optional project scope.
func PairKeyFor(x, y int64, projectID *int64) string {
	a, b := NormalizePair(x, y)
	var p int64
	if projectID != nil {
		p = *projectID
	}
	return fmt.Sprintf("%d:%d:%d", a, b, p)
}

// ConversationParticipant is per-user, per-conversation view state: the read
// watermark plus independent mute/archive/pin flags.
type ConversationParticipant struct {
	ID             int64      `json:"id" gorm:"primaryKey"`
	ConversationID int64      `json:"conversation_id" gorm:"uniqueIndex:idx_conv_user;not null"`
	UserID         int64      `json:"user_id" gorm:"uniqueIndex:idx_conv_user;not null"`
	JoinedAt       time.Time  `json:"joined_at"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
	LastSeenAt     *time.Time `json:"last_seen_at,omitempty"`
	IsMuted        bool       `json:"is_muted" gorm:"default:false"`
	IsArchived     bool       `json:"is_archived" gorm:"default:false"`
	IsPinned       bool       `json:"is_pinned" gorm:"default:false"`
}

func (ConversationParticipant) TableName() string {
	return "conversation_participants"
}
