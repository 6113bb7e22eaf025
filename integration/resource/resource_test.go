package resource

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sdkStatus string

type sdkAPIResource struct {
	LastResponse string `json:"-"`
}

type sdkCard struct {
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"exp_month"`
}

type sdkInvoice struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
}

type sdkCustomer struct {
	sdkAPIResource
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	Phone       *string           `json:"phone"`
	Status      sdkStatus         `json:"status"`
	Created     int64             `json:"created"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Card        *sdkCard          `json:"card"`
	Invoices    []*sdkInvoice     `json:"invoices"`
	Tags        []string          `json:"tags"`
	Metadata    map[string]string `json:"metadata"`
	Untagged    string
	Ignored     string `json:"-"`
	internalRef string
}

func TestFromStruct(t *testing.T) {
	updatedAt := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	customer := &sdkCustomer{
		ID:          "cus_1",
		Email:       "x@example.com",
		Status:      "ACTIVE",
		Created:     1609459200,
		UpdatedAt:   updatedAt,
		Card:        &sdkCard{Last4: "4242", ExpMonth: 12},
		Invoices:    []*sdkInvoice{{ID: "in_1", Amount: 100}, nil, {ID: "in_2", Amount: 200}},
		Untagged:    "untagged",
		Ignored:     "ignored",
		internalRef: "internal",
	}

	res := FromStruct(customer, "account")
	require.NotNil(t, res)
	assert.Equal(t, "account", res.Nodename())
	assert.Equal(t, []string{"created", "email", "id", "status", "updated_at"}, res.Attributes())

	t.Run("AbsentAttributes", func(t *testing.T) {
		for _, name := range []string{"phone", "tags", "metadata", "Untagged", "LastResponse", "internalRef"} {
			_, exists := res.Attribute(name)
			assert.False(t, exists, name)
		}
	})

	t.Run("Values", func(t *testing.T) {
		status, _ := res.Attribute("status")
		assert.Equal(t, sdkStatus("ACTIVE"), status)

		value, _ := res.Attribute("updated_at")
		assert.Equal(t, updatedAt, value)
	})

	t.Run("Relations", func(t *testing.T) {
		card, exists := res.Related("card")
		assert.True(t, exists)
		last4, _ := card.Attribute("last4")
		assert.Equal(t, "4242", last4)

		invoices, exists := res.RelatedList("invoices")
		assert.True(t, exists)
		assert.Len(t, invoices, 2)
		id, _ := invoices[1].Attribute("id")
		assert.Equal(t, "in_2", id)
	})

	phone := "+100"
	customer.Phone = &phone
	customer.Card = nil
	res = FromStruct(customer, "account")
	value, exists := res.Attribute("phone")
	assert.True(t, exists)
	assert.Equal(t, "+100", value)
	_, exists = res.Related("card")
	assert.False(t, exists)
}

func TestFromStructOptions(t *testing.T) {
	customer := sdkCustomer{ID: "cus_1", Email: "x@example.com", Card: &sdkCard{Last4: "4242"}}

	res := FromStruct(customer, "account",
		Rename("id", "account_code"),
		Rename("card", "billing_info"),
		Rename("phone", "phone_number"),
		Skip("email"),
		With("state", "active"),
		With("closed_at", nil),
	)

	accountCode, exists := res.Attribute("account_code")
	assert.True(t, exists)
	assert.Equal(t, "cus_1", accountCode)

	_, exists = res.Attribute("id")
	assert.False(t, exists)
	_, exists = res.Attribute("email")
	assert.False(t, exists)
	// Absent sources stay absent after rename.
	_, exists = res.Attribute("phone_number")
	assert.False(t, exists)

	_, exists = res.Related("billing_info")
	assert.True(t, exists)

	state, _ := res.Attribute("state")
	assert.Equal(t, "active", state)
	closedAt, exists := res.Attribute("closed_at")
	assert.True(t, exists)
	assert.Nil(t, closedAt)
}

func TestFromStructNil(t *testing.T) {
	var card *sdkCard
	assert.Nil(t, FromStruct(card, "billing_info"))
	assert.Nil(t, FromStruct(nil, "billing_info"))
	assert.Nil(t, FromStruct("not a struct", "billing_info"))
	assert.True(t, IsNil(FromStruct(card, "billing_info")))
}

func TestFromJSON(t *testing.T) {
	raw := []byte(`{
		"account_code": "ABC1",
		"email": "x@example.com",
		"closed_at": null,
		"balance": 12,
		"billing_info": {"last_four": "1111", "month": 1},
		"subscriptions": [{"uuid": "s1"}, {"uuid": "s2"}],
		"tags": ["a", "b"]
	}`)

	res, err := FromJSON("account", raw)
	require.Nil(t, err)

	snapshot := Snapshot(res)
	assert.Equal(t, "ABC1", snapshot["account_code"])
	assert.Equal(t, json.Number("12"), snapshot["balance"])
	assert.Contains(t, snapshot, "closed_at")
	assert.Nil(t, snapshot["closed_at"])
	assert.Contains(t, snapshot, "tags")
	assert.NotContains(t, snapshot, "billing_info")

	billingInfo, exists := res.Related("billing_info")
	assert.True(t, exists)
	month, _ := billingInfo.Attribute("month")
	assert.Equal(t, json.Number("1"), month)

	subscriptions, exists := res.RelatedList("subscriptions")
	assert.True(t, exists)
	assert.Len(t, subscriptions, 2)

	_, err = FromJSON("account", []byte(`null`))
	assert.NotNil(t, err)
	_, err = FromJSON("account", []byte(`{`))
	assert.NotNil(t, err)
}

func TestMapAttach(t *testing.T) {
	res := NewMap("account", map[string]interface{}{"account_code": "ABC1"})

	var card *Map
	res.Attach("billing_info", card)
	_, exists := res.Related("billing_info")
	assert.False(t, exists)

	res.Attach("billing_info", NewMap("billing_info", map[string]interface{}{"last_four": "1111"}))
	_, exists = res.Related("billing_info")
	assert.True(t, exists)

	res.AttachList("subscriptions", []Resource{card, NewMap("subscriptions", nil)})
	subscriptions, exists := res.RelatedList("subscriptions")
	assert.True(t, exists)
	assert.Len(t, subscriptions, 1)

	res.AttachList("transactions", nil)
	transactions, exists := res.RelatedList("transactions")
	assert.True(t, exists)
	assert.Len(t, transactions, 0)

	res.Rename("account_code", "code").Delete("subscriptions")
	_, exists = res.Attribute("code")
	assert.True(t, exists)
	_, exists = res.RelatedList("subscriptions")
	assert.False(t, exists)

	assert.Len(t, Snapshot(nil), 0)
}
