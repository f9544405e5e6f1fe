package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lancedesk/lancedesk/pkg/db"
	"github.com/lancedesk/lancedesk/pkg/metrics"
	"github.com/lancedesk/lancedesk/pkg/models"
	"gorm.io/gorm"
)

// SendMessage appends a message to a conversation the sender participates
// in. When an attachment is supplied it is uploaded first; an upload failure
// aborts the send with no message row written. The stored type follows the
// attachment's mime type regardless of what the caller passed.
func (s *MessagingService) SendMessage(ctx context.Context, senderID, conversationID int64, req *models.SendMessageRequest) (*models.MessageView, error) {
	exists, err := s.conversationExists(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrConversationNotFound
	}

	participant, err := s.participantRow(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, ErrNotParticipant
	}

	content := strings.TrimSpace(req.Content)
	if content == "" && req.Attachment == nil {
		return nil, fmt.Errorf("%w: message content is required", ErrInvalidInput)
	}
	if len(content) > db.MaxMessageLength {
		return nil, fmt.Errorf("%w: message exceeds %d characters", ErrInvalidInput, db.MaxMessageLength)
	}

	msgType := req.Type
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	switch msgType {
	case models.MessageTypeText, models.MessageTypeImage, models.MessageTypeFile, models.MessageTypeSystem:
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", ErrInvalidInput, msgType)
	}

	if req.ReplyToMessageID != nil {
		var target models.Message
		err := s.db.WithContext(ctx).First(&target, "id = ?", *req.ReplyToMessageID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: reply target", ErrMessageNotFound)
		}
		if err != nil {
			return nil, err
		}
		if target.ConversationID != conversationID {
			return nil, fmt.Errorf("%w: reply target belongs to another conversation", ErrInvalidInput)
		}
	}

	msg := &models.Message{
		ConversationID:   conversationID,
		SenderID:         senderID,
		Content:          content,
		Type:             msgType,
		ReplyToMessageID: req.ReplyToMessageID,
	}

	if req.Attachment != nil {
		if len(req.Attachment.Data) == 0 {
			return nil, fmt.Errorf("%w: attachment payload is empty", ErrInvalidInput)
		}
		folder := fmt.Sprintf("conversation-%d", conversationID)
		url, err := s.attachments.Upload(ctx, req.Attachment.Data, folder, req.Attachment.FileName)
		if err != nil {
			return nil, fmt.Errorf("upload attachment: %w", err)
		}
		msg.AttachmentURL = url
		msg.AttachmentName = req.Attachment.FileName
		msg.AttachmentMime = req.Attachment.MimeType
		msg.AttachmentSize = int64(len(req.Attachment.Data))
		if strings.HasPrefix(req.Attachment.MimeType, "image/") {
			msg.Type = models.MessageTypeImage
		} else {
			msg.Type = models.MessageTypeFile
		}
	}

	now := time.Now()
	msg.SentAt = now
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Updates(map[string]interface{}{
				"last_message_at": now,
				"updated_at":      now,
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	metrics.MessagesSent.WithLabelValues(msg.Type).Inc()
	return s.messageView(ctx, msg, senderID)
}

// EditMessage rewrites a message's content. The lookup is scoped to the
// editor's own messages, so editing someone else's message reports the same
// not-found as editing a nonexistent one. Edits are only accepted within the
// edit window after sending.
func (s *MessagingService) EditMessage(ctx context.Context, editorID, messageID int64, newContent string) (*models.MessageView, error) {
	content := strings.TrimSpace(newContent)
	if content == "" {
		return nil, fmt.Errorf("%w: message content is required", ErrInvalidInput)
	}
	if len(content) > db.MaxMessageLength {
		return nil, fmt.Errorf("%w: message exceeds %d characters", ErrInvalidInput, db.MaxMessageLength)
	}

	var msg models.Message
	err := s.db.WithContext(ctx).
		First(&msg, "id = ? AND sender_id = ?", messageID, editorID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, ErrMessageNotFound
	}

	if time.Since(msg.SentAt) > editWindow {
		return nil, ErrEditWindowExpired
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&msg).Updates(map[string]interface{}{
		"content":    content,
		"is_edited":  true,
		"edited_at":  now,
		"updated_at": now,
	}).Error; err != nil {
		return nil, fmt.Errorf("edit message: %w", err)
	}

	metrics.MessagesEdited.Inc()
	return s.messageView(ctx, &msg, editorID)
}

// DeleteMessage soft-deletes one of the caller's own messages: content is
// replaced with a tombstone and the row stays, preserving ordering and
// reply references. Returns false, without error, when the message does not
// exist or is not owned by the caller.
func (s *MessagingService) DeleteMessage(ctx context.Context, deleterID, messageID int64) (bool, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).
		First(&msg, "id = ? AND sender_id = ?", messageID, deleterID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&msg).Updates(map[string]interface{}{
		"content":    db.DeletedMessageContent,
		"is_deleted": true,
		"deleted_at": now,
		"updated_at": now,
	}).Error; err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}

	if msg.HasAttachment() {
		// Fire-and-forget; the tombstoned row keeps its metadata either way.
		url := msg.AttachmentURL
		go func() {
			if err := s.attachments.Delete(context.Background(), url); err != nil {
				s.logger.Warn("Failed to delete attachment", "url", url, "error", err)
			}
		}()
	}

	metrics.MessagesDeleted.Inc()
	return true, nil
}
