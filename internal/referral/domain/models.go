package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Referrer struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Code      string       `gorm:"type:varchar(16);not null;uniqueIndex" json:"code"`
	Name      string       `gorm:"not null" json:"name"`
	Email     string       `json:"email,omitempty"`
	Note      string       `json:"note,omitempty"`
	Active    bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Referrer) TableName() string {
	return "referrers"
}
