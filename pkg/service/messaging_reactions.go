package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lancedesk/lancedesk/pkg/metrics"
	"github.com/lancedesk/lancedesk/pkg/models"
	"gorm.io/gorm"
)

// AddReaction records one emoji reaction by userID to a message in a
// conversation they participate in. Adding the same emoji twice fails; a
// different emoji on the same message is a separate reaction.
func (s *MessagingService) AddReaction(ctx context.Context, userID, messageID int64, emoji string) (*models.MessageView, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, fmt.Errorf("%w: emoji is required", ErrInvalidInput)
	}

	msg, err := s.messageForParticipant(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.MessageReaction{}).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrDuplicateReaction
	}

	reaction := &models.MessageReaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
	}
	if err := s.db.WithContext(ctx).Create(reaction).Error; err != nil {
		// The unique index may still fire under a concurrent duplicate add.
		var existing int64
		if cerr := s.db.WithContext(ctx).
			Model(&models.MessageReaction{}).
			Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
			Count(&existing).Error; cerr == nil && existing > 0 {
			return nil, ErrDuplicateReaction
		}
		return nil, fmt.Errorf("add reaction: %w", err)
	}

	metrics.ReactionsChanged.WithLabelValues("add").Inc()
	return s.messageView(ctx, msg, userID)
}

// RemoveReaction removes userID's reaction with the given emoji. Removing a
// reaction that was never added fails with ErrReactionNotFound.
func (s *MessagingService) RemoveReaction(ctx context.Context, userID, messageID int64, emoji string) (*models.MessageView, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, fmt.Errorf("%w: emoji is required", ErrInvalidInput)
	}

	msg, err := s.messageForParticipant(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}

	res := s.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&models.MessageReaction{})
	if res.Error != nil {
		return nil, fmt.Errorf("remove reaction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrReactionNotFound
	}

	metrics.ReactionsChanged.WithLabelValues("remove").Inc()
	return s.messageView(ctx, msg, userID)
}

// GetMessageReactions returns the message's reactions grouped by emoji.
// The viewer must participate in the message's conversation, the same
// check every other message-scoped operation applies.
func (s *MessagingService) GetMessageReactions(ctx context.Context, viewerID, messageID int64) ([]models.ReactionGroup, error) {
	if _, err := s.messageForParticipant(ctx, messageID, viewerID); err != nil {
		return nil, err
	}

	var rows []models.MessageReaction
	if err := s.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return groupReactions(rows, viewerID), nil
}

// messageForParticipant loads a message and verifies userID participates in
// its conversation.
func (s *MessagingService) messageForParticipant(ctx context.Context, messageID, userID int64) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).First(&msg, "id = ?", messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}

	participant, err := s.participantRow(ctx, msg.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, ErrNotParticipant
	}
	return &msg, nil
}
