package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lancedesk/lancedesk/pkg/db"
	"github.com/lancedesk/lancedesk/pkg/directory"
	"github.com/lancedesk/lancedesk/pkg/models"
)

// memStore keeps uploads in memory so tests can assert on storage calls
// without touching the filesystem.
type memStore struct {
	mu       sync.Mutex
	uploads  map[string][]byte
	deleted  []string
	failNext bool
}

func newMemStore() *memStore {
	return &memStore{uploads: make(map[string][]byte)}
}

func (m *memStore) Upload(ctx context.Context, data []byte, folder, fileName string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return "", errors.New("storage unavailable")
	}
	url := fmt.Sprintf("/mem/%s/%d-%s", folder, len(m.uploads)+1, fileName)
	m.uploads[url] = data
	return url, nil
}

func (m *memStore) Delete(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.uploads, url)
	m.deleted = append(m.deleted, url)
	return nil
}

const (
	freelancerID = int64(1)
	clientID     = int64(2)
	outsiderID   = int64(3)
	projectID    = int64(10)
)

func newTestService(t *testing.T) (*MessagingService, *memStore) {
	t.Helper()

	// A file-backed database; ":memory:" gives every pooled connection
	// its own empty database.
	gdb, err := db.Open("sqlite", filepath.Join(t.TempDir(), "messaging.db"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	users := []models.User{
		{ID: freelancerID, DisplayName: "Ada Okafor", Role: models.RoleFreelancer},
		{ID: clientID, DisplayName: "Ben Silva", Role: models.RoleClient},
		{ID: outsiderID, DisplayName: "Cara Lindt", Role: models.RoleClient},
	}
	if err := gdb.Create(&users).Error; err != nil {
		t.Fatalf("seed users: %v", err)
	}
	project := models.Project{ID: projectID, Title: "Landing page redesign"}
	if err := gdb.Create(&project).Error; err != nil {
		t.Fatalf("seed project: %v", err)
	}

	store := newMemStore()
	svc := NewMessagingService(gdb,
		directory.NewGormUserDirectory(gdb),
		directory.NewGormProjectDirectory(gdb),
		store)
	return svc, store
}

// startConversation is a fixture shortcut for tests that need an existing
// conversation between the freelancer and the client.
func startConversation(t *testing.T, svc *MessagingService, initial string) *models.ConversationView {
	t.Helper()
	view, err := svc.StartConversation(context.Background(), freelancerID, &models.StartConversationRequest{
		ParticipantID:  clientID,
		InitialMessage: initial,
	})
	if err != nil {
		t.Fatalf("start conversation: %v", err)
	}
	return view
}

func TestStartConversationValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		caller  int64
		req     *models.StartConversationRequest
		wantErr error
	}{
		{
			name:    "self conversation",
			caller:  freelancerID,
			req:     &models.StartConversationRequest{ParticipantID: freelancerID, InitialMessage: "hi"},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "missing initial message",
			caller:  freelancerID,
			req:     &models.StartConversationRequest{ParticipantID: clientID, InitialMessage: "   "},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "zero participant",
			caller:  freelancerID,
			req:     &models.StartConversationRequest{ParticipantID: 0, InitialMessage: "hi"},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "unknown participant",
			caller:  freelancerID,
			req:     &models.StartConversationRequest{ParticipantID: 999, InitialMessage: "hi"},
			wantErr: ErrUserNotFound,
		},
		{
			name:   "unknown project",
			caller: freelancerID,
			req: &models.StartConversationRequest{
				ParticipantID:  clientID,
				ProjectID:      ptr(int64(999)),
				InitialMessage: "hi",
			},
			wantErr: ErrProjectNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.StartConversation(ctx, tt.caller, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("StartConversation() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStartConversationDeduplicates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.StartConversation(ctx, freelancerID, &models.StartConversationRequest{
		ParticipantID:  clientID,
		InitialMessage: "Hello, about the project",
	})
	if err != nil {
		t.Fatalf("first StartConversation: %v", err)
	}

	// The same pair in the opposite direction resolves to the same
	// conversation, and the second initial message is dropped.
	second, err := svc.StartConversation(ctx, clientID, &models.StartConversationRequest{
		ParticipantID:  freelancerID,
		InitialMessage: "This should be dropped",
	})
	if err != nil {
		t.Fatalf("second StartConversation: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("conversation ids differ: %d vs %d", first.ID, second.ID)
	}

	var msgCount int64
	if err := svc.db.Model(&models.Message{}).Where("conversation_id = ?", first.ID).Count(&msgCount).Error; err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if msgCount != 1 {
		t.Fatalf("message count = %d, want 1", msgCount)
	}
}

func TestStartConversationProjectScopesAreSeparate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	general, err := svc.StartConversation(ctx, freelancerID, &models.StartConversationRequest{
		ParticipantID:  clientID,
		InitialMessage: "general chat",
	})
	if err != nil {
		t.Fatalf("general StartConversation: %v", err)
	}

	scoped, err := svc.StartConversation(ctx, clientID, &models.StartConversationRequest{
		ParticipantID:  freelancerID,
		ProjectID:      ptr(projectID),
		InitialMessage: "project chat",
	})
	if err != nil {
		t.Fatalf("scoped StartConversation: %v", err)
	}

	if general.ID == scoped.ID {
		t.Fatalf("project-scoped conversation reused the unscoped one (id %d)", general.ID)
	}
	if scoped.Project == nil || scoped.Project.ID != projectID {
		t.Fatalf("scoped view project = %+v, want id %d", scoped.Project, projectID)
	}
	if general.Project != nil {
		t.Fatalf("unscoped view carries project %+v", general.Project)
	}
}

func TestStartConversationView(t *testing.T) {
	svc, _ := newTestService(t)

	view := startConversation(t, svc, "Kickoff message")

	if view.OtherParticipant.ID != clientID {
		t.Fatalf("other participant = %d, want %d", view.OtherParticipant.ID, clientID)
	}
	if view.OtherParticipant.DisplayName != "Ben Silva" {
		t.Fatalf("other participant name = %q", view.OtherParticipant.DisplayName)
	}
	if view.LastMessage == nil || view.LastMessage.Content != "Kickoff message" {
		t.Fatalf("last message = %+v, want kickoff content", view.LastMessage)
	}
	if view.UnreadCount != 0 {
		t.Fatalf("initiator unread = %d, want 0", view.UnreadCount)
	}
}

func TestGetConversationHidesExistenceFromOutsiders(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv := startConversation(t, svc, "private thread")

	view, err := svc.GetConversation(ctx, outsiderID, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation(outsider): %v", err)
	}
	if view != nil {
		t.Fatalf("outsider got conversation view %+v", view)
	}

	missing, err := svc.GetConversation(ctx, freelancerID, 9999)
	if err != nil {
		t.Fatalf("GetConversation(missing): %v", err)
	}
	if missing != nil {
		t.Fatalf("missing conversation returned view %+v", missing)
	}

	mine, err := svc.GetConversation(ctx, freelancerID, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation(participant): %v", err)
	}
	if mine == nil || mine.ID != conv.ID {
		t.Fatalf("participant view = %+v, want id %d", mine, conv.ID)
	}
}

func TestGetConversationMessagesPaging(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv := startConversation(t, svc, "first")
	for _, content := range []string{"second", "third"} {
		sender := clientID
		if content == "third" {
			sender = freelancerID
		}
		if _, err := svc.SendMessage(ctx, sender, conv.ID, &models.SendMessageRequest{Content: content}); err != nil {
			t.Fatalf("send %q: %v", content, err)
		}
	}

	page1, err := svc.GetConversationMessages(ctx, freelancerID, conv.ID, 1, 2)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if page1.TotalCount != 3 {
		t.Fatalf("total = %d, want 3", page1.TotalCount)
	}
	if got := contents(page1.Messages); got[0] != "second" || got[1] != "third" {
		t.Fatalf("page 1 contents = %v, want [second third]", got)
	}
	if !page1.HasPreviousPage {
		t.Fatal("page 1 should report older messages")
	}
	if page1.HasNextPage {
		t.Fatal("page 1 is the newest page, no next")
	}

	page2, err := svc.GetConversationMessages(ctx, freelancerID, conv.ID, 2, 2)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if got := contents(page2.Messages); len(got) != 1 || got[0] != "first" {
		t.Fatalf("page 2 contents = %v, want [first]", got)
	}
	if page2.HasPreviousPage {
		t.Fatal("page 2 holds the oldest message, no previous")
	}
	if !page2.HasNextPage {
		t.Fatal("page 2 should report newer messages")
	}
}

func TestGetConversationMessagesAccess(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv := startConversation(t, svc, "hello")

	if _, err := svc.GetConversationMessages(ctx, freelancerID, 9999, 1, 20); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("missing conversation error = %v, want ErrConversationNotFound", err)
	}
	if _, err := svc.GetConversationMessages(ctx, outsiderID, conv.ID, 1, 20); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("outsider error = %v, want ErrNotParticipant", err)
	}
}

func TestMarkConversationAsRead(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv := startConversation(t, svc, "kickoff")

	var ids []int64
	for _, content := range []string{"reply one", "reply two", "reply three"} {
		msg, err := svc.SendMessage(ctx, clientID, conv.ID, &models.SendMessageRequest{Content: content})
		if err != nil {
			t.Fatalf("send %q: %v", content, err)
		}
		ids = append(ids, msg.ID)
	}

	if n := unreadCount(t, svc, conv.ID, freelancerID); n != 3 {
		t.Fatalf("unread before = %d, want 3", n)
	}

	// Bounded: only the first client message is flagged.
	ok, err := svc.MarkConversationAsRead(ctx, freelancerID, conv.ID, &ids[0])
	if err != nil || !ok {
		t.Fatalf("bounded mark read = %v, %v", ok, err)
	}
	if n := unreadCount(t, svc, conv.ID, freelancerID); n != 2 {
		t.Fatalf("unread after bounded mark = %d, want 2", n)
	}

	// Unbounded: everything else is flagged too.
	ok, err = svc.MarkConversationAsRead(ctx, freelancerID, conv.ID, nil)
	if err != nil || !ok {
		t.Fatalf("unbounded mark read = %v, %v", ok, err)
	}
	if n := unreadCount(t, svc, conv.ID, freelancerID); n != 0 {
		t.Fatalf("unread after unbounded mark = %d, want 0", n)
	}

	// The sender's own messages never count as unread for them.
	if n := unreadCount(t, svc, conv.ID, clientID); n != 1 {
		t.Fatalf("client unread = %d, want 1 (the kickoff)", n)
	}

	ok, err = svc.MarkConversationAsRead(ctx, outsiderID, conv.ID, nil)
	if err != nil {
		t.Fatalf("outsider mark read: %v", err)
	}
	if ok {
		t.Fatal("outsider mark read reported success")
	}
}

func TestMarkConversationAsReadSkipsOwnMessages(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv := startConversation(t, svc, "m1 from freelancer")
	m1 := conv.LastMessage

	if _, err := svc.SendMessage(ctx, clientID, conv.ID, &models.SendMessageRequest{Content: "m2 from client"}); err != nil {
		t.Fatalf("send m2: %v", err)
	}
	if _, err := svc.SendMessage(ctx, freelancerID, conv.ID, &models.SendMessageRequest{Content: "m3 from freelancer"}); err != nil {
		t.Fatalf("send m3: %v", err)
	}

	// Two freelancer messages are unread for the client; their own m2 never
	// counts.
	if n := unreadCount(t, svc, conv.ID, clientID); n != 2 {
		t.Fatalf("client unread = %d, want 2", n)
	}

	ok, err := svc.MarkConversationAsRead(ctx, clientID, conv.ID, &m1.ID)
	if err != nil || !ok {
		t.Fatalf("mark read up to m1 = %v, %v", ok, err)
	}
	if n := unreadCount(t, svc, conv.ID, clientID); n != 1 {
		t.Fatalf("client unread after bound = %d, want 1 (m3 only)", n)
	}
}

func TestUpdateConversationSettingsOverwrites(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv := startConversation(t, svc, "settings thread")

	ok, err := svc.UpdateConversationSettings(ctx, freelancerID, conv.ID, &models.ConversationSettingsUpdate{
		IsMuted: true, IsArchived: true, IsPinned: true,
	})
	if err != nil || !ok {
		t.Fatalf("first settings update = %v, %v", ok, err)
	}

	// A later update with only is_pinned set clears the other two flags.
	ok, err = svc.UpdateConversationSettings(ctx, freelancerID, conv.ID, &models.ConversationSettingsUpdate{IsPinned: true})
	if err != nil || !ok {
		t.Fatalf("second settings update = %v, %v", ok, err)
	}

	view, err := svc.GetConversation(ctx, freelancerID, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if view.IsMuted || view.IsArchived || !view.IsPinned {
		t.Fatalf("flags = muted:%v archived:%v pinned:%v, want only pinned", view.IsMuted, view.IsArchived, view.IsPinned)
	}

	// The other participant's flags are untouched.
	other, err := svc.GetConversation(ctx, clientID, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation(client): %v", err)
	}
	if other.IsMuted || other.IsArchived || other.IsPinned {
		t.Fatalf("client flags changed: %+v", other)
	}

	ok, err = svc.UpdateConversationSettings(ctx, outsiderID, conv.ID, &models.ConversationSettingsUpdate{})
	if err != nil {
		t.Fatalf("outsider settings update: %v", err)
	}
	if ok {
		t.Fatal("outsider settings update reported success")
	}
}

func TestGetUserConversationsOrderingAndArchive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	withClient := startConversation(t, svc, "client thread")

	withOutsider, err := svc.StartConversation(ctx, freelancerID, &models.StartConversationRequest{
		ParticipantID:  outsiderID,
		InitialMessage: "outsider thread",
	})
	if err != nil {
		t.Fatalf("second conversation: %v", err)
	}

	// Fresh activity moves the client thread back to the top.
	bump(t, svc, withClient.ID, time.Now().Add(time.Minute))

	convs, err := svc.GetUserConversations(ctx, freelancerID, false)
	if err != nil {
		t.Fatalf("GetUserConversations: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("conversation count = %d, want 2", len(convs))
	}
	if convs[0].ID != withClient.ID || convs[1].ID != withOutsider.ID {
		t.Fatalf("order = [%d %d], want [%d %d]", convs[0].ID, convs[1].ID, withClient.ID, withOutsider.ID)
	}

	if _, err := svc.UpdateConversationSettings(ctx, freelancerID, withOutsider.ID, &models.ConversationSettingsUpdate{IsArchived: true}); err != nil {
		t.Fatalf("archive: %v", err)
	}

	active, err := svc.GetUserConversations(ctx, freelancerID, false)
	if err != nil {
		t.Fatalf("GetUserConversations(active): %v", err)
	}
	if len(active) != 1 || active[0].ID != withClient.ID {
		t.Fatalf("active conversations = %+v, want only %d", activeIDs(active), withClient.ID)
	}

	all, err := svc.GetUserConversations(ctx, freelancerID, true)
	if err != nil {
		t.Fatalf("GetUserConversations(all): %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("all conversations = %d, want 2", len(all))
	}
}

func TestNormalizePaging(t *testing.T) {
	tests := []struct {
		page, size         int
		wantPage, wantSize int
	}{
		{0, 0, 1, defaultPageSize},
		{-3, -1, 1, defaultPageSize},
		{2, 50, 2, 50},
		{1, 500, 1, maxPageSize},
	}
	for _, tt := range tests {
		gotPage, gotSize := normalizePaging(tt.page, tt.size)
		if gotPage != tt.wantPage || gotSize != tt.wantSize {
			t.Errorf("normalizePaging(%d, %d) = (%d, %d), want (%d, %d)",
				tt.page, tt.size, gotPage, gotSize, tt.wantPage, tt.wantSize)
		}
	}
}

// ========== Test helpers ==========

func ptr[T any](v T) *T { return &v }

func contents(views []models.MessageView) []string {
	out := make([]string, 0, len(views))
	for _, v := range views {
		out = append(out, v.Content)
	}
	return out
}

func activeIDs(views []models.ConversationView) []int64 {
	out := make([]int64, 0, len(views))
	for _, v := range views {
		out = append(out, v.ID)
	}
	return out
}

func unreadCount(t *testing.T, svc *MessagingService, conversationID, userID int64) int64 {
	t.Helper()
	counts, err := svc.unreadCounts(context.Background(), []int64{conversationID}, userID)
	if err != nil {
		t.Fatalf("unreadCounts: %v", err)
	}
	return counts[conversationID]
}

// bump rewrites a conversation's last activity timestamp directly.
func bump(t *testing.T, svc *MessagingService, conversationID int64, at time.Time) {
	t.Helper()
	if err := svc.db.Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("last_message_at", at).Error; err != nil {
		t.Fatalf("bump conversation %d: %v", conversationID, err)
	}
}
