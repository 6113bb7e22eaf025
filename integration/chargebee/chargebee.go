package chargebee

import (
	"context"
	"net/http"

	"github.com/chargebee/chargebee-go/v3"
	customerAction "github.com/chargebee/chargebee-go/v3/actions/customer"
	subscriptionAction "github.com/chargebee/chargebee-go/v3/actions/subscription"
	transactionAction "github.com/chargebee/chargebee-go/v3/actions/transaction"
	"github.com/chargebee/chargebee-go/v3/filter"
	"github.com/chargebee/chargebee-go/v3/models/card"
	"github.com/chargebee/chargebee-go/v3/models/customer"
	"github.com/chargebee/chargebee-go/v3/models/subscription"
	"github.com/chargebee/chargebee-go/v3/models/transaction"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	C "billsync/config"
	"billsync/integration/billing"
	"billsync/integration/resource"
	U "billsync/util"
)

const listPageLimit = 100

// Provider Supplies chargebee customers as account resources.
type Provider struct {
	site string
}

func NewProvider(site, apiKey string) *Provider {
	chargebee.Configure(apiKey, site)
	return &Provider{site: site}
}

func (p *Provider) Name() string {
	return C.ProviderChargebee
}

// GetAccount Retrieves the customer with its card, subscriptions and
// transactions. The account code is the chargebee customer id.
func (p *Provider) GetAccount(ctx context.Context, accountCode string) (resource.Resource, error) {
	if accountCode == "" {
		return nil, billing.ErrEmptyAccountCode
	}
	logCtx := log.WithFields(log.Fields{"site": p.site, "customer_id": accountCode})

	result, err := customerAction.Retrieve(accountCode).Request()
	if err != nil {
		if isNotFoundError(err) {
			return nil, errors.Wrapf(billing.ErrAccountNotFound, "chargebee customer %s", accountCode)
		}
		logCtx.WithError(err).Error("Failed to get customer from chargebee.")
		return nil, err
	}
	if result.Customer == nil {
		return nil, errors.Wrapf(billing.ErrAccountNotFound, "chargebee customer %s", accountCode)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	subscriptions, err := listSubscriptions(accountCode)
	if err != nil {
		logCtx.WithError(err).Error("Failed to list subscriptions from chargebee.")
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	transactions, err := listTransactions(accountCode)
	if err != nil {
		logCtx.WithError(err).Error("Failed to list transactions from chargebee.")
		return nil, err
	}

	return AccountResource(result.Customer, result.Card, subscriptions, transactions), nil
}

func isNotFoundError(err error) bool {
	var apiError *chargebee.Error
	if !errors.As(err, &apiError) {
		return false
	}
	return apiError.HTTPStatusCode == http.StatusNotFound || apiError.APIErrorCode == "resource_not_found"
}

func listSubscriptions(customerID string) ([]*subscription.Subscription, error) {
	subscriptions := make([]*subscription.Subscription, 0)

	offset := ""
	for {
		res, err := subscriptionAction.List(&subscription.ListRequestParams{
			Limit:      chargebee.Int32(listPageLimit),
			Offset:     offset,
			CustomerId: &filter.StringFilter{Is: customerID},
		}).ListRequest()
		if err != nil {
			return nil, err
		}

		for idx := 0; idx < len(res.List); idx++ {
			if res.List[idx].Subscription != nil {
				subscriptions = append(subscriptions, res.List[idx].Subscription)
			}
		}

		if res.NextOffset == "" {
			break
		}
		offset = res.NextOffset
	}

	return subscriptions, nil
}

func listTransactions(customerID string) ([]*transaction.Transaction, error) {
	transactions := make([]*transaction.Transaction, 0)

	offset := ""
	for {
		res, err := transactionAction.List(&transaction.ListRequestParams{
			Limit:      chargebee.Int32(listPageLimit),
			Offset:     offset,
			CustomerId: &filter.StringFilter{Is: customerID},
		}).ListRequest()
		if err != nil {
			return nil, err
		}

		for idx := 0; idx < len(res.List); idx++ {
			if res.List[idx].Transaction != nil {
				transactions = append(transactions, res.List[idx].Transaction)
			}
		}

		if res.NextOffset == "" {
			break
		}
		offset = res.NextOffset
	}

	return transactions, nil
}

// AccountResource Builds the account resource of a chargebee customer.
// Chargebee attribute names are renamed to the local ones.
func AccountResource(cbCustomer *customer.Customer, cbCard *card.Card,
	subscriptions []*subscription.Subscription, transactions []*transaction.Transaction) *resource.Map {

	account := resource.FromStruct(cbCustomer, "account",
		resource.Rename("id", "account_code"),
		resource.Rename("company", "company_name"),
		resource.Rename("locale", "accept_language"),
		resource.Skip("billing_address", "payment_method", "balances", "contacts", "relationship"),
	)
	if account == nil {
		return nil
	}

	state := "active"
	if deleted, _ := account.Attribute("deleted"); deleted == true {
		state = "closed"
	}
	account.Set("state", state)

	if taxability, exists := account.Attribute("taxability"); exists {
		value, _ := U.GetValueAsString(taxability)
		account.Set("tax_exempt", value == "exempt")
	}

	account.Attach("billing_info", BillingInfoResource(cbCard))

	subscriptionResources := make([]resource.Resource, 0, len(subscriptions))
	for _, cbSubscription := range subscriptions {
		subscriptionResources = append(subscriptionResources, SubscriptionResource(cbSubscription))
	}
	account.AttachList("subscriptions", subscriptionResources)

	transactionResources := make([]resource.Resource, 0, len(transactions))
	for _, cbTransaction := range transactions {
		transactionResources = append(transactionResources, TransactionResource(cbTransaction))
	}
	account.AttachList("transactions", transactionResources)

	return account
}

func BillingInfoResource(cbCard *card.Card) *resource.Map {
	return resource.FromStruct(cbCard, "billing_info",
		resource.Rename("last4", "last_four"),
		resource.Rename("iin", "first_six"),
		resource.Rename("expiry_month", "month"),
		resource.Rename("expiry_year", "year"),
		resource.Rename("billing_addr1", "address1"),
		resource.Rename("billing_addr2", "address2"),
		resource.Rename("billing_city", "city"),
		resource.Rename("billing_state", "state"),
		resource.Rename("billing_zip", "zip"),
		resource.Rename("billing_country", "country"),
	)
}

func SubscriptionResource(cbSubscription *subscription.Subscription) *resource.Map {
	sub := resource.FromStruct(cbSubscription, "subscriptions",
		resource.Rename("id", "uuid"),
		resource.Rename("status", "state"),
		resource.Rename("plan_id", "plan_code"),
		resource.Rename("plan_unit_price", "unit_amount_in_cents"),
		resource.Rename("plan_quantity", "quantity"),
		resource.Rename("currency_code", "currency"),
		resource.Rename("cancelled_at", "canceled_at"),
		resource.Rename("current_term_start", "current_period_started_at"),
		resource.Rename("current_term_end", "current_period_ends_at"),
		resource.Rename("trial_start", "trial_started_at"),
		resource.Rename("trial_end", "trial_ends_at"),
	)
	if sub == nil {
		return nil
	}

	if state, exists := sub.Attribute("state"); exists {
		if value, _ := U.GetValueAsString(state); value == "cancelled" {
			sub.Set("state", "canceled")
		}
	}

	// Item based subscriptions carry the plan as the first item price.
	if items, exists := sub.RelatedList("subscription_items"); exists && len(items) > 0 {
		if planCode, exists := sub.Attribute("plan_code"); !exists || U.IsEmptyValue(planCode) {
			if itemPriceID, exists := items[0].Attribute("item_price_id"); exists {
				sub.Set("plan_code", itemPriceID)
			}
			if unitPrice, exists := items[0].Attribute("unit_price"); exists {
				sub.Set("unit_amount_in_cents", unitPrice)
			}
			if quantity, exists := items[0].Attribute("quantity"); exists {
				sub.Set("quantity", quantity)
			}
		}
	}

	return sub
}

func TransactionResource(cbTransaction *transaction.Transaction) *resource.Map {
	return resource.FromStruct(cbTransaction, "transactions",
		resource.Rename("id", "uuid"),
		resource.Rename("type", "action"),
		resource.Rename("amount", "amount_in_cents"),
		resource.Rename("currency_code", "currency"),
		resource.Rename("date", "created_at"),
		resource.Rename("reference_number", "reference"),
		resource.Rename("gateway", "source"),
		resource.Skip("created_at"),
	)
}
