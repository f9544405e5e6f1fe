package service

import (
	"context"
	"errors"
	"strings"

	"github.com/lancedesk/lancedesk/pkg/metrics"
	"github.com/lancedesk/lancedesk/pkg/models"
	"gorm.io/gorm"
)

// SearchMessages finds messages across the user's conversations, newest
// first. The participant scope is applied before any optional filter, so
// results can never include a conversation the user is not part of. Query
// matching is a case-insensitive substring match.
func (s *MessagingService) SearchMessages(ctx context.Context, userID int64, filter *models.MessageSearchFilter) ([]models.MessageView, error) {
	page, pageSize := normalizePaging(filter.Page, filter.PageSize)

	query := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = messages.conversation_id AND cp.user_id = ?", userID)

	if q := strings.TrimSpace(filter.Query); q != "" {
		query = query.Where("lower(messages.content) LIKE ?", "%"+strings.ToLower(q)+"%")
	}
	if filter.ConversationID != nil {
		query = query.Where("messages.conversation_id = ?", *filter.ConversationID)
	}
	if filter.Type != "" {
		query = query.Where("messages.type = ?", filter.Type)
	}
	if filter.FromDate != nil {
		query = query.Where("messages.sent_at >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("messages.sent_at <= ?", *filter.ToDate)
	}

	var rows []models.Message
	if err := query.
		Order("messages.sent_at DESC").
		Order("messages.id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	metrics.Searches.Inc()
	return s.messageViews(ctx, rows, userID)
}

// GetUserMessageStats aggregates the user's messaging activity: totals,
// unread counts, last activity and the five most recently active
// conversations.
func (s *MessagingService) GetUserMessageStats(ctx context.Context, userID int64) (*models.StatsView, error) {
	stats := &models.StatsView{}

	convScope := func() *gorm.DB {
		return s.db.WithContext(ctx).
			Model(&models.Conversation{}).
			Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id AND cp.user_id = ?", userID)
	}

	if err := convScope().Count(&stats.TotalConversations).Error; err != nil {
		return nil, err
	}
	if err := convScope().Where("cp.is_archived = ?", false).Count(&stats.ActiveConversations).Error; err != nil {
		return nil, err
	}

	msgScope := func() *gorm.DB {
		return s.db.WithContext(ctx).
			Model(&models.Message{}).
			Joins("JOIN conversation_participants cp ON cp.conversation_id = messages.conversation_id AND cp.user_id = ?", userID)
	}

	if err := msgScope().Count(&stats.TotalMessages).Error; err != nil {
		return nil, err
	}
	if err := msgScope().
		Where("messages.sender_id <> ? AND messages.is_read = ?", userID, false).
		Count(&stats.UnreadMessages).Error; err != nil {
		return nil, err
	}
	if err := msgScope().
		Where("messages.sender_id <> ? AND messages.is_read = ?", userID, false).
		Distinct("messages.conversation_id").
		Count(&stats.ConversationsWithUnread).Error; err != nil {
		return nil, err
	}

	var latest models.Message
	err := msgScope().
		Order("messages.sent_at DESC").
		Order("messages.id DESC").
		First(&latest).Error
	if err == nil {
		t := latest.SentAt
		stats.LastMessageAt = &t
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var recent []models.Conversation
	if err := convScope().
		Order("COALESCE(conversations.last_message_at, conversations.created_at) DESC").
		Limit(5).
		Find(&recent).Error; err != nil {
		return nil, err
	}
	views, err := s.conversationViews(ctx, recent, userID)
	if err != nil {
		return nil, err
	}
	stats.RecentConversations = views

	return stats, nil
}
