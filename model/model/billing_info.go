package model

import "time"

// BillingInfo Payment details of an account. Resolved only through its account.
type BillingInfo struct {
	ID        uint64 `gorm:"primary_key:true;" json:"id"`
	AccountID uint64 `gorm:"not null;unique_index" sync:"-" json:"account_id"`

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Address1  string `gorm:"column:address1" json:"address1"`
	Address2  string `gorm:"column:address2" json:"address2"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
	VatNumber string `json:"vat_number"`
	IPAddress string `gorm:"column:ip_address" json:"ip_address"`

	CardType  string `json:"card_type"`
	Month     int    `json:"month"`
	Year      int    `json:"year"`
	FirstSix  string `gorm:"size:6" json:"first_six"`
	LastFour  string `gorm:"size:4" json:"last_four"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (BillingInfo) TableName() string {
	return "billing_infos"
}
