package model

import "time"

const (
	AccountStateActive  = "active"
	AccountStateClosed  = "closed"
	AccountStatePastDue = "past_due"
)

// Account Local mirror of a billing provider account (customer).
// Fields tagged sync:"-" are owned locally and never written from remote data.
// Remote timestamps use a different column than gorm's own CreatedAt/UpdatedAt.
type Account struct {
	ID          uint64 `gorm:"primary_key:true;" json:"id"`
	AccountCode string `gorm:"not null;unique_index" json:"account_code"`
	State       string `gorm:"not null" choices:"active,closed,past_due" json:"state"`

	Username       string `json:"username"`
	Email          string `json:"email"`
	CcEmails       string `json:"cc_emails"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	CompanyName    string `json:"company_name"`
	VatNumber      string `json:"vat_number"`
	TaxExempt      bool   `json:"tax_exempt"`
	AcceptLanguage string `json:"accept_language"`
	// Token used on the provider's hosted pages.
	HostedLoginToken string `gorm:"size:40" json:"hosted_login_token"`

	ClosedAt        *time.Time `json:"closed_at"`
	RemoteCreatedAt *time.Time `sync:"created_at" json:"remote_created_at"`
	RemoteUpdatedAt *time.Time `sync:"updated_at" json:"remote_updated_at"`

	// Application user owning the account.
	UserID       uint64     `sync:"-" json:"user_id"`
	LastSyncedAt *time.Time `sync:"-" json:"last_synced_at"`

	BillingInfo   *BillingInfo   `gorm:"foreignkey:AccountID" json:"billing_info,omitempty"`
	Subscriptions []Subscription `gorm:"foreignkey:AccountID" json:"subscriptions,omitempty"`
	Transactions  []Transaction  `gorm:"foreignkey:AccountID" json:"transactions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Account) UniqueLookupField() string {
	return "account_code"
}

// IsActive Returns true unless the account is closed remotely.
func (a *Account) IsActive() bool {
	return a.State != AccountStateClosed
}

// GetActiveSubscription Returns the first subscription in an active state.
func (a *Account) GetActiveSubscription() (*Subscription, bool) {
	for i := range a.Subscriptions {
		if a.Subscriptions[i].IsActive() {
			return &a.Subscriptions[i], true
		}
	}
	return nil, false
}
