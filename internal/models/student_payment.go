package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StudentPayment is the append-only record of a settled collection.
type StudentPayment struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	TransactionID string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"transaction_id"`
	CheckoutID    string          `gorm:"type:varchar(100);index" json:"checkout_id"`
	StudentID     uint            `gorm:"index" json:"student_id"`
	SchoolID      *uint           `gorm:"index" json:"school_id"`
	TermID        *uint           `gorm:"index" json:"term_id"`
	PhoneNumber   string          `gorm:"type:varchar(20)" json:"phone_number"`
	AmountPaid    decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount_paid"`
	PaymentType   PaymentType     `gorm:"type:varchar(20)" json:"payment_type"`
	PaymentModel  PaymentModel    `gorm:"type:varchar(20)" json:"payment_model"`

	// SchoolShare is what settlement decided the school is owed.
	SchoolShare decimal.Decimal `gorm:"type:decimal(15,2);default:0" json:"school_share"`

	Disbursements []SchoolDisbursement `gorm:"foreignKey:StudentPaymentID" json:"disbursements,omitempty"`
}
