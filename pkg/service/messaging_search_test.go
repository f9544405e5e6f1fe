package service

import (
	"context"
	"testing"
	"time"

	"github.com/lancedesk/lancedesk/pkg/models"
)

func TestSearchMessagesScopeAndMatching(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	mine := startConversation(t, svc, "Invoice draft attached")
	if _, err := svc.SendMessage(ctx, clientID, mine.ID, &models.SendMessageRequest{Content: "Reviewing the INVOICE now"}); err != nil {
		t.Fatalf("send reply: %v", err)
	}
	if _, err := svc.SendMessage(ctx, freelancerID, mine.ID, &models.SendMessageRequest{Content: "Unrelated status update"}); err != nil {
		t.Fatalf("send unrelated: %v", err)
	}

	// A conversation the searcher is not part of.
	foreign, err := svc.StartConversation(ctx, clientID, &models.StartConversationRequest{
		ParticipantID:  outsiderID,
		InitialMessage: "This invoice is overdue",
	})
	if err != nil {
		t.Fatalf("foreign conversation: %v", err)
	}

	results, err := svc.SearchMessages(ctx, freelancerID, &models.MessageSearchFilter{Query: "invoice"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("result count = %d, want 2 (case-insensitive, own conversations only)", len(results))
	}
	for _, r := range results {
		if r.ConversationID == foreign.ID {
			t.Fatalf("search leaked message %d from foreign conversation", r.ID)
		}
	}
	// Newest first.
	if results[0].Content != "Reviewing the INVOICE now" {
		t.Fatalf("first result = %q, want the newest match", results[0].Content)
	}
}

func TestSearchMessagesFilters(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first := startConversation(t, svc, "alpha report")
	second, err := svc.StartConversation(ctx, freelancerID, &models.StartConversationRequest{
		ParticipantID:  outsiderID,
		InitialMessage: "alpha summary",
	})
	if err != nil {
		t.Fatalf("second conversation: %v", err)
	}

	doc, err := svc.SendMessage(ctx, freelancerID, first.ID, &models.SendMessageRequest{
		Content: "alpha spreadsheet",
		Attachment: &models.AttachmentUpload{
			Data:     []byte("cells"),
			FileName: "alpha.xlsx",
			MimeType: "application/vnd.ms-excel",
		},
	})
	if err != nil {
		t.Fatalf("send attachment: %v", err)
	}

	byConv, err := svc.SearchMessages(ctx, freelancerID, &models.MessageSearchFilter{
		Query:          "alpha",
		ConversationID: &second.ID,
	})
	if err != nil {
		t.Fatalf("search by conversation: %v", err)
	}
	if len(byConv) != 1 || byConv[0].Content != "alpha summary" {
		t.Fatalf("conversation filter results = %v", contents(byConv))
	}

	byType, err := svc.SearchMessages(ctx, freelancerID, &models.MessageSearchFilter{
		Query: "alpha",
		Type:  models.MessageTypeFile,
	})
	if err != nil {
		t.Fatalf("search by type: %v", err)
	}
	if len(byType) != 1 || byType[0].ID != doc.ID {
		t.Fatalf("type filter results = %v", contents(byType))
	}

	// Age one message out of a from-date window.
	old := time.Now().Add(-48 * time.Hour)
	if err := svc.db.Model(&models.Message{}).Where("id = ?", doc.ID).Update("sent_at", old).Error; err != nil {
		t.Fatalf("age message: %v", err)
	}
	since := time.Now().Add(-24 * time.Hour)
	recent, err := svc.SearchMessages(ctx, freelancerID, &models.MessageSearchFilter{
		Query:    "alpha",
		FromDate: &since,
	})
	if err != nil {
		t.Fatalf("search by date: %v", err)
	}
	for _, r := range recent {
		if r.ID == doc.ID {
			t.Fatal("from-date filter kept the aged message")
		}
	}
	if len(recent) != 2 {
		t.Fatalf("date filter results = %v, want 2", contents(recent))
	}
}

func TestSearchMessagesPaging(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv := startConversation(t, svc, "needle zero")
	for _, content := range []string{"needle one", "needle two", "needle three"} {
		if _, err := svc.SendMessage(ctx, clientID, conv.ID, &models.SendMessageRequest{Content: content}); err != nil {
			t.Fatalf("send %q: %v", content, err)
		}
	}

	page1, err := svc.SearchMessages(ctx, freelancerID, &models.MessageSearchFilter{Query: "needle", Page: 1, PageSize: 3})
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if got := contents(page1); len(got) != 3 || got[0] != "needle three" {
		t.Fatalf("page 1 = %v", got)
	}

	page2, err := svc.SearchMessages(ctx, freelancerID, &models.MessageSearchFilter{Query: "needle", Page: 2, PageSize: 3})
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if got := contents(page2); len(got) != 1 || got[0] != "needle zero" {
		t.Fatalf("page 2 = %v", got)
	}
}

func TestGetUserMessageStats(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	withClient := startConversation(t, svc, "kickoff")
	if _, err := svc.SendMessage(ctx, clientID, withClient.ID, &models.SendMessageRequest{Content: "client reply"}); err != nil {
		t.Fatalf("client reply: %v", err)
	}

	withOutsider, err := svc.StartConversation(ctx, freelancerID, &models.StartConversationRequest{
		ParticipantID:  outsiderID,
		InitialMessage: "side thread",
	})
	if err != nil {
		t.Fatalf("second conversation: %v", err)
	}
	if _, err := svc.SendMessage(ctx, outsiderID, withOutsider.ID, &models.SendMessageRequest{Content: "outsider reply"}); err != nil {
		t.Fatalf("outsider reply: %v", err)
	}

	// Archive the side thread and read its messages.
	if _, err := svc.UpdateConversationSettings(ctx, freelancerID, withOutsider.ID, &models.ConversationSettingsUpdate{IsArchived: true}); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := svc.MarkConversationAsRead(ctx, freelancerID, withOutsider.ID, nil); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	stats, err := svc.GetUserMessageStats(ctx, freelancerID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}

	if stats.TotalConversations != 2 {
		t.Fatalf("total conversations = %d, want 2", stats.TotalConversations)
	}
	if stats.ActiveConversations != 1 {
		t.Fatalf("active conversations = %d, want 1", stats.ActiveConversations)
	}
	if stats.TotalMessages != 4 {
		t.Fatalf("total messages = %d, want 4", stats.TotalMessages)
	}
	if stats.UnreadMessages != 1 {
		t.Fatalf("unread messages = %d, want 1 (the client reply)", stats.UnreadMessages)
	}
	if stats.ConversationsWithUnread != 1 {
		t.Fatalf("conversations with unread = %d, want 1", stats.ConversationsWithUnread)
	}
	if stats.LastMessageAt == nil {
		t.Fatal("last message timestamp missing")
	}
	if len(stats.RecentConversations) != 2 {
		t.Fatalf("recent conversations = %d, want 2", len(stats.RecentConversations))
	}

	// A user with no conversations gets an all-zero report.
	empty, err := svc.GetUserMessageStats(ctx, 999)
	if err != nil {
		t.Fatalf("empty stats: %v", err)
	}
	if empty.TotalConversations != 0 || empty.TotalMessages != 0 || empty.LastMessageAt != nil {
		t.Fatalf("empty stats = %+v", empty)
	}
	if len(empty.RecentConversations) != 0 {
		t.Fatalf("empty recent = %d", len(empty.RecentConversations))
	}
}
