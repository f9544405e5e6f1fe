// Messaging engine: conversation lifecycle, delivery, read tracking
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lancedesk/lancedesk/pkg/db"
	"github.com/lancedesk/lancedesk/pkg/directory"
	"github.com/lancedesk/lancedesk/pkg/metrics"
	"github.com/lancedesk/lancedesk/pkg/models"
	"github.com/lancedesk/lancedesk/pkg/storage"
	"github.com/lancedesk/lancedesk/pkg/utils"
	"gorm.io/gorm"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrUserNotFound         = errors.New("user not found")
	ErrProjectNotFound      = errors.New("project not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotParticipant       = errors.New("not a participant of this conversation")
	ErrEditWindowExpired    = errors.New("edit window expired")
	ErrDuplicateReaction    = errors.New("reaction already exists")
	ErrReactionNotFound     = errors.New("reaction not found")
)

// editWindow is how long after sending the original sender may still edit.
const editWindow = 15 * time.Minute

// Pagination bounds for message history and search.
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// MessagingService orchestrates conversations, messages, read tracking and
// reactions. It is stateless between calls; all durable state lives in the
// database.
type MessagingService struct {
	db          *gorm.DB
	users       directory.UserDirectory
	projects    directory.ProjectDirectory
	attachments storage.AttachmentStore
	logger      *slog.Logger
}

// NewMessagingService creates a new messaging engine.
func NewMessagingService(gdb *gorm.DB, users directory.UserDirectory, projects directory.ProjectDirectory, attachments storage.AttachmentStore) *MessagingService {
	return &MessagingService{
		db:          gdb,
		users:       users,
		projects:    projects,
		attachments: attachments,
		logger:      utils.GetLogger(),
	}
}

// AutoMigrate creates database tables.
func (s *MessagingService) AutoMigrate() error {
	return db.AutoMigrate(s.db)
}

// ========== Conversation Lifecycle ==========

// StartConversation finds or creates the conversation between the initiator
// and another user within a project scope. The pair+scope is structurally
// unique: a second call returns the existing conversation unchanged and the
// supplied initial message is dropped. On first creation, the conversation,
// both participant rows and the initial message are committed atomically.
func (s *MessagingService) StartConversation(ctx context.Context, initiatorID int64, req *models.StartConversationRequest) (*models.ConversationView, error) {
	if req.ParticipantID <= 0 {
		return nil, fmt.Errorf("%w: participant id must be positive", ErrInvalidInput)
	}
	if req.ParticipantID == initiatorID {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", ErrInvalidInput)
	}
	initialMessage := strings.TrimSpace(req.InitialMessage)
	if initialMessage == "" {
		return nil, fmt.Errorf("%w: initial message is required", ErrInvalidInput)
	}
	if len(initialMessage) > db.MaxMessageLength {
		return nil, fmt.Errorf("%w: message exceeds %d characters", ErrInvalidInput, db.MaxMessageLength)
	}

	// Both ends must exist in the directory before anything is written.
	if _, err := s.users.GetSummary(ctx, initiatorID); err != nil {
		return nil, s.mapDirectoryErr(err)
	}
	if _, err := s.users.GetSummary(ctx, req.ParticipantID); err != nil {
		return nil, s.mapDirectoryErr(err)
	}
	if req.ProjectID != nil {
		if _, err := s.projects.GetSummary(ctx, *req.ProjectID); err != nil {
			if errors.Is(err, directory.ErrProjectNotFound) {
				return nil, ErrProjectNotFound
			}
			return nil, err
		}
	}

	pairKey := db.PairKeyFor(initiatorID, req.ParticipantID, req.ProjectID)

	if existing, err := s.findConversationByPairKey(ctx, pairKey); err != nil {
		return nil, err
	} else if existing != nil {
		return s.conversationView(ctx, existing, initiatorID)
	}

	userA, userB := db.NormalizePair(initiatorID, req.ParticipantID)
	now := time.Now()
	conv := &models.Conversation{
		UserAID:       userA,
		UserBID:       userB,
		PairKey:       pairKey,
		ProjectID:     req.ProjectID,
		Subject:       strings.TrimSpace(req.Subject),
		IsActive:      true,
		LastMessageAt: &now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}

		participants := []models.ConversationParticipant{
			{ConversationID: conv.ID, UserID: initiatorID, JoinedAt: now, LastReadAt: &now},
			{ConversationID: conv.ID, UserID: req.ParticipantID, JoinedAt: now},
		}
		if err := tx.Create(&participants).Error; err != nil {
			return err
		}

		msg := &models.Message{
			ConversationID: conv.ID,
			SenderID:       initiatorID,
			Content:        initialMessage,
			Type:           models.MessageTypeText,
			SentAt:         now,
		}
		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		return tx.Model(conv).Updates(map[string]interface{}{
			"last_message_at": now,
			"updated_at":      now,
		}).Error
	})
	if err != nil {
		// A concurrent call for the same pair may have won the unique
		// index race; return the winner's conversation.
		if winner, ferr := s.findConversationByPairKey(ctx, pairKey); ferr == nil && winner != nil {
			return s.conversationView(ctx, winner, initiatorID)
		}
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	metrics.ConversationsStarted.Inc()
	metrics.MessagesSent.WithLabelValues(models.MessageTypeText).Inc()
	s.logger.Info("Conversation started", "conversation_id", conv.ID, "initiator_id", initiatorID, "participant_id", req.ParticipantID)

	return s.conversationView(ctx, conv, initiatorID)
}

func (s *MessagingService) findConversationByPairKey(ctx context.Context, pairKey string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).First(&conv, "pair_key = ?", pairKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *MessagingService) mapDirectoryErr(err error) error {
	if errors.Is(err, directory.ErrUserNotFound) {
		return ErrUserNotFound
	}
	return err
}

// GetUserConversations lists the user's conversations, most recent activity
// first. Conversations the user archived are excluded unless includeArchived
// is set.
func (s *MessagingService) GetUserConversations(ctx context.Context, userID int64, includeArchived bool) ([]models.ConversationView, error) {
	query := s.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id AND cp.user_id = ?", userID)
	if !includeArchived {
		query = query.Where("cp.is_archived = ?", false)
	}

	var convs []models.Conversation
	if err := query.
		Order("COALESCE(conversations.last_message_at, conversations.created_at) DESC").
		Find(&convs).Error; err != nil {
		return nil, err
	}

	return s.conversationViews(ctx, convs, userID)
}

// GetConversation returns the conversation as seen by userID, or nil when
// it does not exist or the user is not a participant. Non-participants get
// the same answer as a missing conversation so existence cannot be probed.
func (s *MessagingService) GetConversation(ctx context.Context, userID, conversationID int64) (*models.ConversationView, error) {
	participant, err := s.participantRow(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, nil
	}

	var conv models.Conversation
	if err := s.db.WithContext(ctx).First(&conv, "id = ?", conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.conversationView(ctx, &conv, userID)
}

// GetConversationMessages returns one page of a conversation's history.
// Page 1 holds the newest messages; within a page messages are ascending by
// send time so they render top to bottom.
func (s *MessagingService) GetConversationMessages(ctx context.Context, userID, conversationID int64, page, pageSize int) (*models.MessagesPage, error) {
	exists, err := s.conversationExists(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrConversationNotFound
	}

	participant, err := s.participantRow(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, ErrNotParticipant
	}

	page, pageSize = normalizePaging(page, pageSize)

	var total int64
	if err := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&total).Error; err != nil {
		return nil, err
	}

	var rows []models.Message
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sent_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	// Reverse into ascending order within the page.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	views, err := s.messageViews(ctx, rows, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).
		Model(&models.ConversationParticipant{}).
		Where("id = ?", participant.ID).
		Update("last_seen_at", now).Error; err != nil {
		s.logger.Warn("Failed to update last seen", "conversation_id", conversationID, "user_id", userID, "error", err)
	}

	return &models.MessagesPage{
		Messages:        views,
		TotalCount:      total,
		Page:            page,
		PageSize:        pageSize,
		HasNextPage:     page > 1,
		HasPreviousPage: int64(page*pageSize) < total,
	}, nil
}

// ========== Settings & read tracking ==========

// MarkConversationAsRead advances the caller's read watermark and flags all
// unread messages from the other side as read, optionally only up to
// upToMessageID. Returns false when the caller has no participant row.
func (s *MessagingService) MarkConversationAsRead(ctx context.Context, userID, conversationID int64, upToMessageID *int64) (bool, error) {
	participant, err := s.participantRow(ctx, conversationID, userID)
	if err != nil {
		return false, err
	}
	if participant == nil {
		return false, nil
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ConversationParticipant{}).
			Where("id = ?", participant.ID).
			Updates(map[string]interface{}{
				"last_read_at": now,
				"last_seen_at": now,
			}).Error; err != nil {
			return err
		}

		q := tx.Model(&models.Message{}).
			Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conversationID, userID, false)
		if upToMessageID != nil {
			q = q.Where("id <= ?", *upToMessageID)
		}
		return q.Updates(map[string]interface{}{
			"is_read": true,
			"read_at": now,
		}).Error
	})
	if err != nil {
		return false, fmt.Errorf("mark conversation read: %w", err)
	}
	return true, nil
}

// UpdateConversationSettings overwrites the caller's mute/archive/pin flags
// for one conversation. Returns false when the caller has no participant
// row. The update is a full overwrite, not a merge.
func (s *MessagingService) UpdateConversationSettings(ctx context.Context, userID, conversationID int64, settings *models.ConversationSettingsUpdate) (bool, error) {
	participant, err := s.participantRow(ctx, conversationID, userID)
	if err != nil {
		return false, err
	}
	if participant == nil {
		return false, nil
	}

	err = s.db.WithContext(ctx).
		Model(&models.ConversationParticipant{}).
		Where("id = ?", participant.ID).
		Updates(map[string]interface{}{
			"is_muted":    settings.IsMuted,
			"is_archived": settings.IsArchived,
			"is_pinned":   settings.IsPinned,
		}).Error
	if err != nil {
		return false, fmt.Errorf("update conversation settings: %w", err)
	}
	return true, nil
}

// ========== Shared lookups ==========

func (s *MessagingService) participantRow(ctx context.Context, conversationID, userID int64) (*models.ConversationParticipant, error) {
	var participant models.ConversationParticipant
	err := s.db.WithContext(ctx).
		First(&participant, "conversation_id = ? AND user_id = ?", conversationID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func (s *MessagingService) conversationExists(ctx context.Context, conversationID int64) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func normalizePaging(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
