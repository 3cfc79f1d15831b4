package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TermCommission tracks the platform commission owed for one student in one term.
type TermCommission struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	StudentID        uint            `gorm:"uniqueIndex:idx_term_commission_student_term,priority:1" json:"student_id"`
	TermID           uint            `gorm:"uniqueIndex:idx_term_commission_student_term,priority:2" json:"term_id"`
	CommissionAmount decimal.Decimal `gorm:"type:decimal(15,2)" json:"commission_amount"`
	AmountCollected  decimal.Decimal `gorm:"type:decimal(15,2);default:0" json:"amount_collected"`
	IsPaid           bool            `gorm:"default:false" json:"is_paid"`
	PaidAt           *time.Time      `json:"paid_at"`
}

// Remaining is the commission still to be recovered.
func (c TermCommission) Remaining() decimal.Decimal {
	if c.IsPaid {
		return decimal.Zero
	}
	return decimal.Max(c.CommissionAmount.Sub(c.AmountCollected), decimal.Zero)
}

// Absorb takes the commission share out of a payment and returns what is
// left for the school. is_paid flips to true at most once.
func (c *TermCommission) Absorb(amount decimal.Decimal, now time.Time) decimal.Decimal {
	if c.IsPaid {
		return amount
	}
	remaining := c.Remaining()
	if amount.GreaterThanOrEqual(remaining) {
		c.AmountCollected = c.CommissionAmount
		c.IsPaid = true
		c.PaidAt = &now
		return amount.Sub(remaining)
	}
	c.AmountCollected = c.AmountCollected.Add(amount)
	return decimal.Zero
}
