// User and project directory lookups for denormalized display
package directory

import (
	"context"
	"errors"

	"github.com/lancedesk/lancedesk/pkg/models"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrProjectNotFound = errors.New("project not found")
)

// UserDirectory supplies minimal user summaries for embedding in
// conversation and message views.
type UserDirectory interface {
	GetSummary(ctx context.Context, userID int64) (*models.UserSummary, error)
	GetSummaries(ctx context.Context, userIDs []int64) (map[int64]models.UserSummary, error)
}

// ProjectDirectory supplies minimal project summaries.
type ProjectDirectory interface {
	GetSummary(ctx context.Context, projectID int64) (*models.ProjectSummary, error)
}

// GormUserDirectory reads summaries straight from the users table.
type GormUserDirectory struct {
	db *gorm.DB
}

func NewGormUserDirectory(db *gorm.DB) *GormUserDirectory {
	return &GormUserDirectory{db: db}
}

func (d *GormUserDirectory) GetSummary(ctx context.Context, userID int64) (*models.UserSummary, error) {
	var user models.User
	if err := d.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	s := summarizeUser(&user)
	return &s, nil
}

func (d *GormUserDirectory) GetSummaries(ctx context.Context, userIDs []int64) (map[int64]models.UserSummary, error) {
	out := make(map[int64]models.UserSummary, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	var users []models.User
	if err := d.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, err
	}
	for i := range users {
		out[users[i].ID] = summarizeUser(&users[i])
	}
	return out, nil
}

func summarizeUser(u *models.User) models.UserSummary {
	return models.UserSummary{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Role:        u.Role,
		IsOnline:    u.IsOnline,
		LastSeenAt:  u.LastSeenAt,
	}
}

// GormProjectDirectory reads summaries straight from the projects table.
type GormProjectDirectory struct {
	db *gorm.DB
}

func NewGormProjectDirectory(db *gorm.DB) *GormProjectDirectory {
	return &GormProjectDirectory{db: db}
}

func (d *GormProjectDirectory) GetSummary(ctx context.Context, projectID int64) (*models.ProjectSummary, error) {
	var project models.Project
	if err := d.db.WithContext(ctx).First(&project, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &models.ProjectSummary{
		ID:          project.ID,
		Title:       project.Title,
		Description: project.Description,
	}, nil
}
