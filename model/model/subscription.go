package model

import (
	"time"

	U "billsync/util"
)

const (
	SubscriptionStateActive       = "active"
	SubscriptionStateCanceled     = "canceled"
	SubscriptionStateExpired      = "expired"
	SubscriptionStateFuture       = "future"
	SubscriptionStateInTrial      = "in_trial"
	SubscriptionStateLive         = "live"
	SubscriptionStateNonRenewing  = "non_renewing"
	SubscriptionStatePastDue      = "past_due"
	SubscriptionStatePaused       = "paused"
	SubscriptionStateTrialing     = "trialing"
	SubscriptionStateUnpaid       = "unpaid"
	SubscriptionStateIncomplete   = "incomplete"
	SubscriptionStateIncompleteEx = "incomplete_expired"
)

var activeSubscriptionStates = []string{
	SubscriptionStateActive,
	SubscriptionStateInTrial,
	SubscriptionStateLive,
	SubscriptionStateNonRenewing,
	SubscriptionStateTrialing,
}

type Subscription struct {
	ID        uint64 `gorm:"primary_key:true;" json:"id"`
	AccountID uint64 `gorm:"not null;index" sync:"-" json:"account_id"`
	UUID      string `gorm:"column:uuid;not null;unique_index" json:"uuid"`

	PlanCode string `json:"plan_code"`
	PlanName string `json:"plan_name"`
	State    string `choices:"active,canceled,expired,future,in_trial,live,non_renewing,past_due,paused,trialing,unpaid,incomplete,incomplete_expired" json:"state"`

	UnitAmountInCents int64  `json:"unit_amount_in_cents"`
	Currency          string `gorm:"size:3" json:"currency"`
	Quantity          int    `json:"quantity"`

	ActivatedAt            *time.Time `json:"activated_at"`
	CanceledAt             *time.Time `json:"canceled_at"`
	ExpiresAt              *time.Time `json:"expires_at"`
	CurrentPeriodStartedAt *time.Time `json:"current_period_started_at"`
	CurrentPeriodEndsAt    *time.Time `json:"current_period_ends_at"`
	TrialStartedAt         *time.Time `json:"trial_started_at"`
	TrialEndsAt            *time.Time `json:"trial_ends_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Subscription) UniqueLookupField() string {
	return "uuid"
}

func (s *Subscription) IsActive() bool {
	return U.StringValueIn(s.State, activeSubscriptionStates)
}
