package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type DisbursementChannel string

const (
	DisbursementChannelB2C DisbursementChannel = "B2C" // mobile money
	DisbursementChannelB2B DisbursementChannel = "B2B" // bank paybill
)

type DisbursementStatus string

const (
	DisbursementStatusPending   DisbursementStatus = "pending"
	DisbursementStatusCompleted DisbursementStatus = "completed"
	DisbursementStatusFailed    DisbursementStatus = "failed"
	// Skipped marks a share that could not be sent at all: no payout
	// destination, or less than one whole shilling. Deleting the row makes the
	// sweep pick the payment up again.
	DisbursementStatusSkipped DisbursementStatus = "skipped"
)

// SchoolDisbursement is one payout attempt to a school. The gateway echoes
// OriginatorConversationID in its result callback, which is how results are
// matched back to the row. A student payment has at most one row.
type SchoolDisbursement struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	StudentPaymentID uint                `gorm:"uniqueIndex" json:"student_payment_id"`
	SchoolID         uint                `gorm:"index" json:"school_id"`
	Channel          DisbursementChannel `gorm:"type:varchar(5)" json:"channel"`
	PhoneNumber      *string             `gorm:"type:varchar(20)" json:"phone_number"`
	BankPaybill      *string             `gorm:"type:varchar(20)" json:"bank_paybill"`
	BankAccount      *string             `gorm:"type:varchar(50)" json:"bank_account"`
	AmountDisbursed  decimal.Decimal     `gorm:"type:decimal(15,2)" json:"amount_disbursed"`
	// AmountWithheld is the part of the share not sent: the sub-shilling
	// remainder the gateway cannot pay, or the whole share when skipped.
	AmountWithheld   decimal.Decimal     `gorm:"type:decimal(15,2);default:0" json:"amount_withheld"`
	Status           DisbursementStatus  `gorm:"type:varchar(20);default:'pending';index" json:"status"`

	OriginatorConversationID string     `gorm:"type:varchar(100);uniqueIndex;not null" json:"originator_conversation_id"`
	ConversationID           *string    `gorm:"type:varchar(100)" json:"conversation_id"`
	TransactionID            *string    `gorm:"type:varchar(100);index" json:"transaction_id"`
	ResultCode               *int       `json:"result_code"`
	ResultDesc               *string    `gorm:"type:text" json:"result_desc"`
	CompletedAt              *time.Time `json:"completed_at"`
}

// IsResolved reports whether a result callback has already been applied.
func (d SchoolDisbursement) IsResolved() bool {
	return d.Status == DisbursementStatusCompleted ||
		d.Status == DisbursementStatusFailed ||
		d.Status == DisbursementStatusSkipped
}
