package chargebee

import (
	"net/http"
	"testing"

	"github.com/chargebee/chargebee-go/v3"
	"github.com/chargebee/chargebee-go/v3/models/card"
	"github.com/chargebee/chargebee-go/v3/models/customer"
	"github.com/chargebee/chargebee-go/v3/models/subscription"
	"github.com/chargebee/chargebee-go/v3/models/transaction"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billsync/integration/resource"
)

func TestAccountResource(t *testing.T) {
	cbCustomer := &customer.Customer{
		Id:         "cb_cus_1",
		Email:      "x@example.com",
		FirstName:  "Jane",
		Company:    "Acme",
		Taxability: "exempt",
		CreatedAt:  1609459200,
	}
	cbCard := &card.Card{
		Last4:       "1111",
		Iin:         "411111",
		ExpiryMonth: 12,
		ExpiryYear:  2030,
		BillingCity: "Austin",
	}
	subscriptions := []*subscription.Subscription{
		{
			Id:     "cb_sub_1",
			Status: "cancelled",
			SubscriptionItems: []*subscription.SubscriptionItem{
				{ItemPriceId: "basic-USD-monthly"},
			},
		},
		nil,
	}
	transactions := []*transaction.Transaction{
		{Id: "cb_txn_1", Type: "payment", Amount: 1500, Date: 1609459200, ReferenceNumber: "ref_1"},
	}

	account := AccountResource(cbCustomer, cbCard, subscriptions, transactions)
	require.NotNil(t, account)
	assert.Equal(t, "account", account.Nodename())

	snapshot := resource.Snapshot(account)
	assert.Equal(t, "cb_cus_1", snapshot["account_code"])
	assert.Equal(t, "Acme", snapshot["company_name"])
	assert.Equal(t, "active", snapshot["state"])
	assert.Equal(t, true, snapshot["tax_exempt"])
	assert.Equal(t, int64(1609459200), snapshot["created_at"])
	assert.NotContains(t, snapshot, "id")
	assert.NotContains(t, snapshot, "company")

	billingInfo, exists := account.Related("billing_info")
	require.True(t, exists)
	billingInfoSnapshot := resource.Snapshot(billingInfo)
	assert.Equal(t, "1111", billingInfoSnapshot["last_four"])
	assert.Equal(t, "411111", billingInfoSnapshot["first_six"])
	assert.EqualValues(t, 12, billingInfoSnapshot["month"])
	assert.EqualValues(t, 2030, billingInfoSnapshot["year"])
	assert.Equal(t, "Austin", billingInfoSnapshot["city"])

	subscriptionList, exists := account.RelatedList("subscriptions")
	require.True(t, exists)
	require.Len(t, subscriptionList, 1)
	subscriptionSnapshot := resource.Snapshot(subscriptionList[0])
	assert.Equal(t, "cb_sub_1", subscriptionSnapshot["uuid"])
	assert.Equal(t, "canceled", subscriptionSnapshot["state"])
	assert.Equal(t, "basic-USD-monthly", subscriptionSnapshot["plan_code"])

	transactionList, exists := account.RelatedList("transactions")
	require.True(t, exists)
	require.Len(t, transactionList, 1)
	transactionSnapshot := resource.Snapshot(transactionList[0])
	assert.Equal(t, "cb_txn_1", transactionSnapshot["uuid"])
	assert.EqualValues(t, "payment", transactionSnapshot["action"])
	assert.Equal(t, int64(1500), transactionSnapshot["amount_in_cents"])
	assert.Equal(t, int64(1609459200), transactionSnapshot["created_at"])
	assert.Equal(t, "ref_1", transactionSnapshot["reference"])
}

func TestAccountResourceWithoutCard(t *testing.T) {
	account := AccountResource(&customer.Customer{Id: "cb_cus_2", Deleted: true}, nil, nil, nil)
	require.NotNil(t, account)

	state, _ := account.Attribute("state")
	assert.Equal(t, "closed", state)

	_, exists := account.Related("billing_info")
	assert.False(t, exists)

	// Empty lists remove stale local records.
	subscriptionList, exists := account.RelatedList("subscriptions")
	assert.True(t, exists)
	assert.Len(t, subscriptionList, 0)

	assert.Nil(t, AccountResource(nil, nil, nil, nil))
}

func TestIsNotFoundError(t *testing.T) {
	assert.True(t, isNotFoundError(&chargebee.Error{HTTPStatusCode: http.StatusNotFound}))
	assert.True(t, isNotFoundError(errors.Wrap(&chargebee.Error{APIErrorCode: "resource_not_found"}, "retrieve")))
	assert.False(t, isNotFoundError(&chargebee.Error{HTTPStatusCode: http.StatusUnauthorized}))
	assert.False(t, isNotFoundError(errors.New("timeout")))
}

func TestProviderName(t *testing.T) {
	provider := &Provider{site: "billsync-test"}
	assert.Equal(t, "chargebee", provider.Name())
}
