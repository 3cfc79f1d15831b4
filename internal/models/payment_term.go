package models

import (
	"time"

	"gorm.io/gorm"
)

// PaymentTerm is a school-scoped billing period. A term without a school is
// the platform's own carpool/private term.
type PaymentTerm struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	SchoolID  *uint     `gorm:"index" json:"school_id"`
	Name      string    `gorm:"type:varchar(100)" json:"name"` // e.g. "Term 1 2026"
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	IsActive  bool      `gorm:"default:false;index" json:"is_active"`
}
