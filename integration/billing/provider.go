package billing

import (
	"context"

	"billsync/integration/resource"
)

// Provider Supplier of remote account resources for one billing service.
// The returned account resource exposes its billing_info, subscriptions
// and transactions as related resources.
type Provider interface {
	Name() string
	// GetAccount Returns ErrAccountNotFound, possibly wrapped, for unknown accounts.
	GetAccount(ctx context.Context, accountCode string) (resource.Resource, error)
}
