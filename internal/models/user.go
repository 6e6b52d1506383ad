package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is owned by the identity service; chat only reads ID, Username and IsActive.
type User struct {
	ID           string     `gorm:"primaryKey;type:char(36)" json:"id"`
	Username     string     `gorm:"uniqueIndex;size:128;not null" json:"username"`
	Aka          string     `gorm:"size:64;not null;default:''" json:"aka"`
	UserRoleID   *string    `gorm:"type:char(36);index" json:"user_role_id"`
	UserGenderID *string    `gorm:"type:char(36);index" json:"user_gender_id"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `gorm:"index" json:"-"`

	UserRole   *MasterUserRole   `gorm:"foreignKey:UserRoleID" json:"user_role,omitempty"`
	UserGender *MasterUserGender `gorm:"foreignKey:UserGenderID" json:"user_gender,omitempty"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// RoleName returns the preloaded role name, or "" when the role was not loaded.
func (u *User) RoleName() string {
	if u.UserRole == nil {
		return ""
	}
	return u.UserRole.Name
}
