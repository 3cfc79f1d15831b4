package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// School is owned by the directory; the payment engine only reads it.
type School struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name             string          `gorm:"type:varchar(255)" json:"name"`
	HasCommission    bool            `gorm:"default:false" json:"has_commission"`
	CommissionAmount decimal.Decimal `gorm:"type:decimal(15,2)" json:"commission_amount"`

	// Payout destinations. A disbursement phone takes precedence over the bank.
	DisbursementPhoneNumber *string `gorm:"type:varchar(20)" json:"disbursement_phone_number"`
	BankPaybillNumber       *string `gorm:"type:varchar(20)" json:"bank_paybill_number"`
	BankAccountNumber       *string `gorm:"type:varchar(50)" json:"bank_account_number"`
}
