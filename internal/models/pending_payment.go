package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentType classifies a collection for the payment record.
type PaymentType string

const (
	PaymentTypeDaily       PaymentType = "daily"
	PaymentTypeWeekly      PaymentType = "weekly"
	PaymentTypeMonthly     PaymentType = "monthly"
	PaymentTypeInitial     PaymentType = "initial"
	PaymentTypeInstallment PaymentType = "installment"
	PaymentTypeTermly      PaymentType = "termly"
)

// PaymentModel selects the settlement strategy.
type PaymentModel string

const (
	PaymentModelDaily    PaymentModel = "daily"    // metered, non-commission school
	PaymentModelTerm     PaymentModel = "term"     // term fee with platform commission
	PaymentModelZidallie PaymentModel = "zidallie" // carpool/private, collected by the platform
)

// PendingPayment anchors a collection request until its callback settles it.
// Its existence is the only evidence that the checkout is still unsettled.
type PendingPayment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CheckoutID   string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"checkout_id"`
	StudentID    uint            `gorm:"index" json:"student_id"`
	SchoolID     *uint           `json:"school_id"`
	TermID       *uint           `json:"term_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount"`
	PhoneNumber  string          `gorm:"type:varchar(20)" json:"phone_number"`
	PaymentType  PaymentType     `gorm:"type:varchar(20)" json:"payment_type"`
	PaymentModel PaymentModel    `gorm:"type:varchar(20)" json:"payment_model"`
}
