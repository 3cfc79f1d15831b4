package models

import (
	"time"

	"gorm.io/datatypes"
)

type CallbackKind string

const (
	CallbackKindSTK           CallbackKind = "stk"
	CallbackKindPayoutResult  CallbackKind = "payout_result"
	CallbackKindPayoutTimeout CallbackKind = "payout_timeout"
)

// GatewayCallback keeps the raw body of every inbound gateway webhook.
type GatewayCallback struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Kind      CallbackKind   `gorm:"type:varchar(20);not null;index" json:"kind"`
	Reference string         `gorm:"type:varchar(100);index" json:"reference"` // checkout or originator conversation id
	Metadata  datatypes.JSON `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}
