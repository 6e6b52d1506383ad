package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MasterConversationType struct {
	ID   string `gorm:"primaryKey;type:char(36)" json:"id"`
	Name string `gorm:"uniqueIndex;size:128;not null" json:"name"`
}

func (MasterConversationType) TableName() string { return "master_conversation_types" }

func (m *MasterConversationType) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

type MasterUserRole struct {
	ID   string `gorm:"primaryKey;type:char(36)" json:"id"`
	Name string `gorm:"uniqueIndex;size:128;not null" json:"name"`
}

func (MasterUserRole) TableName() string { return "master_user_roles" }

func (m *MasterUserRole) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

type MasterUserGender struct {
	ID   string `gorm:"primaryKey;type:char(36)" json:"id"`
	Name string `gorm:"uniqueIndex;size:128;not null" json:"name"`
}

func (MasterUserGender) TableName() string { return "master_user_genders" }

func (m *MasterUserGender) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
