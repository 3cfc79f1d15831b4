package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ServiceType is the billing classification of a student.
type ServiceType string

const (
	ServiceTypeSchool  ServiceType = "school"
	ServiceTypeCarpool ServiceType = "carpool"
	ServiceTypePrivate ServiceType = "private"
)

// Student is owned by the directory; the payment engine only reads it.
type Student struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name        string          `gorm:"type:varchar(255)" json:"name"`
	ServiceType ServiceType     `gorm:"type:varchar(20)" json:"service_type"`
	DailyFee    decimal.Decimal `gorm:"type:decimal(15,2)" json:"daily_fee"`
	TermFee     decimal.Decimal `gorm:"type:decimal(15,2)" json:"term_fee"`
	SchoolID    *uint           `gorm:"index" json:"school_id"`
}
