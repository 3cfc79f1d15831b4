package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive        SubscriptionStatus = "active"
	SubscriptionStatusPartiallyPaid SubscriptionStatus = "partially_paid"
	SubscriptionStatusFullyPaid     SubscriptionStatus = "fully_paid"
	SubscriptionStatusInactive      SubscriptionStatus = "inactive"
)

// LiveSubscriptionStatuses are the statuses of a subscription that can still
// take payments.
var LiveSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusActive,
	SubscriptionStatusPartiallyPaid,
	SubscriptionStatusFullyPaid,
}

// Subscription is the per-student ledger row. Only settlement mutates it.
type Subscription struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	StudentID        uint               `gorm:"index" json:"student_id"`
	TermID           *uint              `gorm:"index" json:"term_id"`
	Status           SubscriptionStatus `gorm:"type:varchar(20);default:'active'" json:"status"`
	TotalPaid        decimal.Decimal    `gorm:"type:decimal(15,2);default:0" json:"total_paid"`
	Balance          decimal.Decimal    `gorm:"type:decimal(15,2);default:0" json:"balance"`
	ExpiryDate       *time.Time         `json:"expiry_date"`
	DaysAccess       int                `gorm:"default:0" json:"days_access"`
	LastPaymentDate  *time.Time         `json:"last_payment_date"`
	IsCommissionPaid bool               `gorm:"default:false" json:"is_commission_paid"`
}

// IsLive reports whether the subscription can take payments.
func (s Subscription) IsLive() bool {
	return s.Status != SubscriptionStatusInactive && s.Status != ""
}

// IsFullyPaid reports whether the term fee has been covered.
func (s Subscription) IsFullyPaid(termFee decimal.Decimal) bool {
	return s.Balance.IsZero() && s.TotalPaid.GreaterThanOrEqual(termFee)
}

// ApplyTermPayment adds amount to the running total and recomputes the
// balance against the term fee. The balance never goes negative.
func (s *Subscription) ApplyTermPayment(amount, termFee decimal.Decimal) {
	s.TotalPaid = s.TotalPaid.Add(amount)
	s.Balance = decimal.Max(termFee.Sub(s.TotalPaid), decimal.Zero)
}
