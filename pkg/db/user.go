// Database models for the user and project directories
package db

import "time"

// User roles
const (
	RoleFreelancer = "freelancer"
	RoleClient     = "client"
)

// User is the directory row behind user summaries. Profile management lives
// elsewhere; messaging only reads these columns for denormalized display.
type User struct {
	ID          int64      `json:"id" gorm:"primaryKey"`
	DisplayName string     `json:"display_name" gorm:"size:100;not null"`
	AvatarURL   string     `json:"avatar_url,omitempty" gorm:"size:500"`
	Role        string     `json:"role" gorm:"size:20;not null;default:'client'"` // freelancer, client
	IsOnline    bool       `json:"is_online" gorm:"default:false"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Project is the directory row behind project summaries.
type Project struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	Title       string    `json:"title" gorm:"size:200;not null"`
	Description string    `json:"description,omitempty" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Project) TableName() string {
	return "projects"
}
