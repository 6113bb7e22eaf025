package stripe

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	stripeSDK "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/charge"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"

	C "billsync/config"
	"billsync/integration/billing"
	"billsync/integration/resource"
	"billsync/model/model"
	U "billsync/util"
)

// Provider Supplies stripe customers as account resources.
type Provider struct{}

func NewProvider(apiKey string) *Provider {
	stripeSDK.Key = apiKey
	return &Provider{}
}

func (p *Provider) Name() string {
	return C.ProviderStripe
}

// GetAccount Loads the customer with its default payment method, all its
// subscriptions and its charges. The account code is the stripe customer id.
func (p *Provider) GetAccount(ctx context.Context, accountCode string) (resource.Resource, error) {
	if accountCode == "" {
		return nil, billing.ErrEmptyAccountCode
	}
	logCtx := log.WithField("customer_id", accountCode)

	customerParams := &stripeSDK.CustomerParams{}
	customerParams.Context = ctx
	customerParams.AddExpand("invoice_settings.default_payment_method")
	stripeCustomer, err := customer.Get(accountCode, customerParams)
	if err != nil {
		if isNotFoundError(err) {
			return nil, errors.Wrapf(billing.ErrAccountNotFound, "stripe customer %s", accountCode)
		}
		logCtx.WithError(err).Error("Failed to get customer from stripe.")
		return nil, err
	}

	subscriptionParams := &stripeSDK.SubscriptionListParams{
		Customer: stripeSDK.String(accountCode),
		Status:   stripeSDK.String("all"),
	}
	subscriptionParams.Context = ctx
	subscriptions := make([]*stripeSDK.Subscription, 0)
	subscriptionIter := subscription.List(subscriptionParams)
	for subscriptionIter.Next() {
		subscriptions = append(subscriptions, subscriptionIter.Subscription())
	}
	if err := subscriptionIter.Err(); err != nil {
		logCtx.WithError(err).Error("Failed to list subscriptions from stripe.")
		return nil, err
	}

	chargeParams := &stripeSDK.ChargeListParams{Customer: stripeSDK.String(accountCode)}
	chargeParams.Context = ctx
	charges := make([]*stripeSDK.Charge, 0)
	chargeIter := charge.List(chargeParams)
	for chargeIter.Next() {
		charges = append(charges, chargeIter.Charge())
	}
	if err := chargeIter.Err(); err != nil {
		logCtx.WithError(err).Error("Failed to list charges from stripe.")
		return nil, err
	}

	return AccountResource(stripeCustomer, subscriptions, charges), nil
}

func isNotFoundError(err error) bool {
	var apiError *stripeSDK.Error
	if !errors.As(err, &apiError) {
		return false
	}
	return apiError.HTTPStatusCode == http.StatusNotFound || apiError.Code == stripeSDK.ErrorCodeResourceMissing
}

// splitName Splits a full name on the first space.
func splitName(name string) (string, string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}

	parts := strings.SplitN(name, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.TrimSpace(parts[1])
}

// AccountResource Builds the account resource of a stripe customer.
func AccountResource(stripeCustomer *stripeSDK.Customer,
	subscriptions []*stripeSDK.Subscription, charges []*stripeSDK.Charge) *resource.Map {

	account := resource.FromStruct(stripeCustomer, "account",
		resource.Rename("id", "account_code"),
		resource.Rename("created", "created_at"),
		resource.Rename("preferred_locales", "accept_language"),
		resource.Skip("subscriptions", "sources", "tax_ids", "invoice_settings", "tax_exempt",
			"address", "shipping", "discount", "cash_balance", "test_clock", "default_source", "tax"),
	)
	if account == nil {
		return nil
	}

	state := "active"
	if stripeCustomer.Deleted {
		state = "closed"
	} else if stripeCustomer.Delinquent {
		state = "past_due"
	}
	account.Set("state", state)
	account.Set("tax_exempt", stripeCustomer.TaxExempt == stripeSDK.CustomerTaxExemptExempt)

	firstName, lastName := splitName(stripeCustomer.Name)
	account.Set("first_name", firstName)
	account.Set("last_name", lastName)

	var defaultPaymentMethod *stripeSDK.PaymentMethod
	if stripeCustomer.InvoiceSettings != nil {
		defaultPaymentMethod = stripeCustomer.InvoiceSettings.DefaultPaymentMethod
	}
	account.Attach("billing_info", BillingInfoResource(defaultPaymentMethod))

	subscriptionResources := make([]resource.Resource, 0, len(subscriptions))
	for _, stripeSubscription := range subscriptions {
		subscriptionResources = append(subscriptionResources, SubscriptionResource(stripeSubscription))
	}
	account.AttachList("subscriptions", subscriptionResources)

	transactionResources := make([]resource.Resource, 0, len(charges))
	for _, stripeCharge := range charges {
		transactionResources = append(transactionResources, TransactionResource(stripeCharge))
	}
	account.AttachList("transactions", transactionResources)

	return account
}

// BillingInfoResource Builds the billing info of a card payment method.
// Returns nil for other payment methods.
func BillingInfoResource(paymentMethod *stripeSDK.PaymentMethod) *resource.Map {
	if paymentMethod == nil || paymentMethod.Card == nil {
		return nil
	}

	billingInfo := resource.FromStruct(paymentMethod.Card, "billing_info",
		resource.Rename("last4", "last_four"),
		resource.Rename("iin", "first_six"),
		resource.Rename("exp_month", "month"),
		resource.Rename("exp_year", "year"),
		resource.Rename("brand", "card_type"),
		resource.Skip("country", "description"),
	)

	details := paymentMethod.BillingDetails
	if details == nil {
		return billingInfo
	}

	firstName, lastName := splitName(details.Name)
	billingInfo.Set("first_name", firstName)
	billingInfo.Set("last_name", lastName)
	billingInfo.Set("phone", details.Phone)

	if details.Address != nil {
		billingInfo.Set("address1", details.Address.Line1)
		billingInfo.Set("address2", details.Address.Line2)
		billingInfo.Set("city", details.Address.City)
		billingInfo.Set("state", details.Address.State)
		billingInfo.Set("zip", details.Address.PostalCode)
		billingInfo.Set("country", details.Address.Country)
	}

	return billingInfo
}

// SubscriptionResource Builds the subscription resource. Plan, amount and
// billing period are read from the first subscription item.
func SubscriptionResource(stripeSubscription *stripeSDK.Subscription) *resource.Map {
	sub := resource.FromStruct(stripeSubscription, "subscriptions",
		resource.Rename("id", "uuid"),
		resource.Rename("status", "state"),
		resource.Rename("start_date", "activated_at"),
		resource.Rename("ended_at", "expires_at"),
		resource.Rename("current_period_start", "current_period_started_at"),
		resource.Rename("current_period_end", "current_period_ends_at"),
		resource.Rename("trial_start", "trial_started_at"),
		resource.Rename("trial_end", "trial_ends_at"),
		resource.Skip("customer", "latest_invoice", "default_payment_method", "schedule", "pending_setup_intent"),
	)
	if sub == nil {
		return nil
	}

	if currency, exists := sub.Attribute("currency"); exists {
		value, _ := U.GetValueAsString(currency)
		sub.Set("currency", strings.ToUpper(value))
	}

	item := getFirstSubscriptionItem(sub)
	if item == nil {
		return sub
	}

	if quantity, exists := item.Attribute("quantity"); exists {
		sub.Set("quantity", quantity)
	}
	for from, to := range map[string]string{
		"current_period_start": "current_period_started_at",
		"current_period_end":   "current_period_ends_at",
	} {
		if _, exists := sub.Attribute(to); exists {
			continue
		}
		if value, exists := item.Attribute(from); exists {
			sub.Set(to, value)
		}
	}

	if price, exists := item.Related("price"); exists {
		if priceID, exists := price.Attribute("id"); exists {
			sub.Set("plan_code", priceID)
		}
		if nickname, exists := price.Attribute("nickname"); exists {
			sub.Set("plan_name", nickname)
		}
		if unitAmount, exists := price.Attribute("unit_amount"); exists {
			sub.Set("unit_amount_in_cents", unitAmount)
		}
	}

	return sub
}

func getFirstSubscriptionItem(sub *resource.Map) resource.Resource {
	items, exists := sub.Related("items")
	if !exists {
		return nil
	}

	data, exists := items.RelatedList("data")
	if !exists || len(data) == 0 {
		return nil
	}
	return data[0]
}

// TransactionResource Builds the transaction resource of a charge.
func TransactionResource(stripeCharge *stripeSDK.Charge) *resource.Map {
	txn := resource.FromStruct(stripeCharge, "transactions",
		resource.Rename("id", "uuid"),
		resource.Rename("amount", "amount_in_cents"),
		resource.Rename("created", "created_at"),
		resource.Rename("receipt_number", "reference"),
		resource.Skip("customer", "invoice", "payment_intent", "balance_transaction", "refunds",
			"source", "application", "application_fee", "review", "transfer", "on_behalf_of"),
	)
	if txn == nil {
		return nil
	}

	action := model.TransactionActionPurchase
	if stripeCharge.Refunded {
		action = model.TransactionActionRefund
	}
	txn.Set("action", action)
	txn.Set("test", !stripeCharge.Livemode)
	txn.Set("source", "stripe")
	txn.Set("currency", strings.ToUpper(string(stripeCharge.Currency)))

	return txn
}
