// View assembly: denormalizing rows into API shapes
package service

import (
	"context"
	"errors"

	"github.com/lancedesk/lancedesk/pkg/directory"
	"github.com/lancedesk/lancedesk/pkg/models"
	"gorm.io/gorm"
)

const replyPreviewLength = 120

// groupReactions aggregates raw reaction rows by emoji, preserving
// first-seen emoji order and per-emoji reaction order. It is the single
// place reactions are grouped for display.
func groupReactions(rows []models.MessageReaction, viewerID int64) []models.ReactionGroup {
	groups := make([]models.ReactionGroup, 0, 4)
	index := make(map[string]int, 4)

	for _, r := range rows {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(groups)
			index[r.Emoji] = i
			groups = append(groups, models.ReactionGroup{Emoji: r.Emoji})
		}
		groups[i].UserIDs = append(groups[i].UserIDs, r.UserID)
		groups[i].Count++
		if r.UserID == viewerID {
			groups[i].ReactedByViewer = true
		}
	}
	return groups
}

// messageView renders a single message for viewerID.
func (s *MessagingService) messageView(ctx context.Context, msg *models.Message, viewerID int64) (*models.MessageView, error) {
	views, err := s.messageViews(ctx, []models.Message{*msg}, viewerID)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// messageViews renders a batch of messages for viewerID, resolving senders,
// reply previews and reactions with one query each.
func (s *MessagingService) messageViews(ctx context.Context, rows []models.Message, viewerID int64) ([]models.MessageView, error) {
	if len(rows) == 0 {
		return []models.MessageView{}, nil
	}

	messageIDs := make([]int64, 0, len(rows))
	replyIDs := make([]int64, 0)
	userIDSet := make(map[int64]struct{})
	for i := range rows {
		messageIDs = append(messageIDs, rows[i].ID)
		userIDSet[rows[i].SenderID] = struct{}{}
		if rows[i].ReplyToMessageID != nil {
			replyIDs = append(replyIDs, *rows[i].ReplyToMessageID)
		}
	}

	replyTargets := make(map[int64]models.Message, len(replyIDs))
	if len(replyIDs) > 0 {
		var targets []models.Message
		if err := s.db.WithContext(ctx).Where("id IN ?", replyIDs).Find(&targets).Error; err != nil {
			return nil, err
		}
		for i := range targets {
			replyTargets[targets[i].ID] = targets[i]
			userIDSet[targets[i].SenderID] = struct{}{}
		}
	}

	var reactions []models.MessageReaction
	if err := s.db.WithContext(ctx).
		Where("message_id IN ?", messageIDs).
		Order("created_at ASC").
		Order("id ASC").
		Find(&reactions).Error; err != nil {
		return nil, err
	}
	reactionsByMessage := make(map[int64][]models.MessageReaction, len(rows))
	for _, r := range reactions {
		reactionsByMessage[r.MessageID] = append(reactionsByMessage[r.MessageID], r)
	}

	userIDs := make([]int64, 0, len(userIDSet))
	for id := range userIDSet {
		userIDs = append(userIDs, id)
	}
	summaries, err := s.users.GetSummaries(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	views := make([]models.MessageView, 0, len(rows))
	for i := range rows {
		msg := &rows[i]
		view := models.MessageView{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			Sender:         summaryOrPlaceholder(summaries, msg.SenderID),
			Content:        msg.Content,
			Type:           msg.Type,
			IsEdited:       msg.IsEdited,
			EditedAt:       msg.EditedAt,
			IsDeleted:      msg.IsDeleted,
			IsRead:         msg.IsRead,
			ReadAt:         msg.ReadAt,
			SentAt:         msg.SentAt,
			Reactions:      groupReactions(reactionsByMessage[msg.ID], viewerID),
		}

		if msg.HasAttachment() {
			view.Attachment = &models.AttachmentInfo{
				URL:      msg.AttachmentURL,
				Name:     msg.AttachmentName,
				MimeType: msg.AttachmentMime,
				Size:     msg.AttachmentSize,
			}
		}

		if msg.ReplyToMessageID != nil {
			if target, ok := replyTargets[*msg.ReplyToMessageID]; ok {
				sender := summaryOrPlaceholder(summaries, target.SenderID)
				view.ReplyTo = &models.ReplyPreview{
					ID:         target.ID,
					SenderID:   target.SenderID,
					SenderName: sender.DisplayName,
					Content:    truncate(target.Content, replyPreviewLength),
					Type:       target.Type,
				}
			}
		}

		views = append(views, view)
	}
	return views, nil
}

// conversationView renders a single conversation for userID.
func (s *MessagingService) conversationView(ctx context.Context, conv *models.Conversation, userID int64) (*models.ConversationView, error) {
	views, err := s.conversationViews(ctx, []models.Conversation{*conv}, userID)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// conversationViews renders a batch of conversations for userID: the other
// side's summary, the viewer's flags, unread counts and the latest message.
func (s *MessagingService) conversationViews(ctx context.Context, convs []models.Conversation, userID int64) ([]models.ConversationView, error) {
	if len(convs) == 0 {
		return []models.ConversationView{}, nil
	}

	conversationIDs := make([]int64, 0, len(convs))
	otherIDs := make([]int64, 0, len(convs))
	for i := range convs {
		conversationIDs = append(conversationIDs, convs[i].ID)
		otherIDs = append(otherIDs, convs[i].OtherUserID(userID))
	}

	summaries, err := s.users.GetSummaries(ctx, otherIDs)
	if err != nil {
		return nil, err
	}

	var participantRows []models.ConversationParticipant
	if err := s.db.WithContext(ctx).
		Where("conversation_id IN ? AND user_id = ?", conversationIDs, userID).
		Find(&participantRows).Error; err != nil {
		return nil, err
	}
	participants := make(map[int64]models.ConversationParticipant, len(participantRows))
	for _, p := range participantRows {
		participants[p.ConversationID] = p
	}

	unread, err := s.unreadCounts(ctx, conversationIDs, userID)
	if err != nil {
		return nil, err
	}

	views := make([]models.ConversationView, 0, len(convs))
	for i := range convs {
		conv := &convs[i]
		view := models.ConversationView{
			ID:               conv.ID,
			Subject:          conv.Subject,
			OtherParticipant: summaryOrPlaceholder(summaries, conv.OtherUserID(userID)),
			UnreadCount:      unread[conv.ID],
			LastMessageAt:    conv.LastMessageAt,
			CreatedAt:        conv.CreatedAt,
			UpdatedAt:        conv.UpdatedAt,
		}

		if p, ok := participants[conv.ID]; ok {
			view.IsMuted = p.IsMuted
			view.IsArchived = p.IsArchived
			view.IsPinned = p.IsPinned
		}

		if conv.ProjectID != nil {
			project, err := s.projects.GetSummary(ctx, *conv.ProjectID)
			if err != nil && !errors.Is(err, directory.ErrProjectNotFound) {
				return nil, err
			}
			view.Project = project
		}

		last, err := s.latestMessage(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		if last != nil {
			lastView, err := s.messageView(ctx, last, userID)
			if err != nil {
				return nil, err
			}
			view.LastMessage = lastView
		}

		views = append(views, view)
	}
	return views, nil
}

func (s *MessagingService) latestMessage(ctx context.Context, conversationID int64) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sent_at DESC").
		Order("id DESC").
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// unreadCounts counts, per conversation, messages not sent by userID and
// not yet read. This is the canonical unread definition; the watermark on
// the participant row is only the fast path kept consistent with it.
func (s *MessagingService) unreadCounts(ctx context.Context, conversationIDs []int64, userID int64) (map[int64]int64, error) {
	type row struct {
		ConversationID int64
		N              int64
	}
	var counts []row
	if err := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Select("conversation_id, COUNT(*) AS n").
		Where("conversation_id IN ? AND sender_id <> ? AND is_read = ?", conversationIDs, userID, false).
		Group("conversation_id").
		Find(&counts).Error; err != nil {
		return nil, err
	}

	out := make(map[int64]int64, len(counts))
	for _, c := range counts {
		out[c.ConversationID] = c.N
	}
	return out, nil
}

func summaryOrPlaceholder(summaries map[int64]models.UserSummary, userID int64) models.UserSummary {
	if s, ok := summaries[userID]; ok {
		return s
	}
	return models.UserSummary{ID: userID, DisplayName: "Unknown user"}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
