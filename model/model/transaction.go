package model

import "time"

const (
	TransactionActionPurchase = "purchase"
	TransactionActionRefund   = "refund"

	TransactionStatusSuccess = "success"
)

type Transaction struct {
	ID        uint64 `gorm:"primary_key:true;" json:"id"`
	AccountID uint64 `gorm:"not null;index" sync:"-" json:"account_id"`
	UUID      string `gorm:"column:uuid;not null;unique_index" json:"uuid"`

	Action string `choices:"authorization,payment,purchase,refund,verify,payment_reversal" json:"action"`
	Status string `choices:"declined,failed,failure,in_progress,needs_attention,pending,succeeded,success,timeout,void,voided" json:"status"`

	AmountInCents int64  `json:"amount_in_cents"`
	Currency      string `gorm:"size:3" json:"currency"`
	Reference     string `json:"reference"`
	Source        string `json:"source"`
	Description   string `json:"description"`
	Test          bool   `json:"test"`

	RemoteCreatedAt *time.Time `sync:"created_at" json:"remote_created_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Transaction) UniqueLookupField() string {
	return "uuid"
}
