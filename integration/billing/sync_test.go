package billing

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"
	"go.uber.org/multierr"

	"billsync/integration/resource"
	"billsync/metrics"
	"billsync/model/store"
	U "billsync/util"
)

type fakeProvider struct {
	name     string
	accounts map[string]*resource.Map
	calls    map[string]int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		name:     "fake_" + U.RandomLowerAphaNumString(5),
		accounts: make(map[string]*resource.Map),
		calls:    make(map[string]int),
	}
}

func (p *fakeProvider) Name() string {
	return p.name
}

func (p *fakeProvider) GetAccount(ctx context.Context, accountCode string) (resource.Resource, error) {
	p.calls[accountCode]++
	account, exists := p.accounts[accountCode]
	if !exists {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

func (p *fakeProvider) addAccount(accountCode string) {
	p.accounts[accountCode] = newRemoteAccount(accountCode, map[string]interface{}{
		"state":        "active",
		"email":        accountCode + "@example.com",
		"billing_info": map[string]interface{}{"last_four": "4242"},
		"subscriptions": []interface{}{
			map[string]interface{}{"uuid": "sub_" + accountCode, "state": "active", "plan_code": "basic"},
		},
	})
}

func TestUpdateLocalAccountData(t *testing.T) {
	provider := newFakeProvider()
	accountCode := newAccountCode()
	provider.addAccount(accountCode)

	t.Run("FetchesRemoteAccount", func(t *testing.T) {
		account, err := UpdateLocalAccountData(context.Background(), provider, nil, accountCode)
		require.Nil(t, err)
		assert.Equal(t, 1, provider.calls[accountCode])
		assert.Equal(t, accountCode+"@example.com", account.Email)
		require.NotNil(t, account.LastSyncedAt)

		fetched, errCode := store.GetStore().GetAccountWithRelations(accountCode)
		require.Equal(t, http.StatusFound, errCode)
		require.NotNil(t, fetched.LastSyncedAt)
		assert.WithinDuration(t, *account.LastSyncedAt, *fetched.LastSyncedAt, time.Second)
		require.NotNil(t, fetched.BillingInfo)
		assert.Equal(t, "4242", fetched.BillingInfo.LastFour)
		require.Len(t, fetched.Subscriptions, 1)
		assert.Equal(t, "basic", fetched.Subscriptions[0].PlanCode)

		syncedAt, exists, err := GetSyncMarker(provider.Name(), accountCode)
		require.Nil(t, err)
		assert.True(t, exists)
		assert.Equal(t, account.LastSyncedAt.Unix(), syncedAt.Unix())
	})

	t.Run("GivenResource", func(t *testing.T) {
		res := newRemoteAccount(accountCode, map[string]interface{}{"state": "closed"})
		account, err := UpdateLocalAccountData(context.Background(), provider, res, "")
		require.Nil(t, err)
		assert.Equal(t, 1, provider.calls[accountCode])
		assert.False(t, account.IsActive())
		assert.Nil(t, account.BillingInfo)
	})

	t.Run("Errors", func(t *testing.T) {
		_, err := UpdateLocalAccountData(context.Background(), provider, nil, "")
		assert.Equal(t, ErrEmptyAccountCode, err)

		missingCode := newAccountCode()
		_, err = UpdateLocalAccountData(context.Background(), provider, nil, missingCode)
		assert.True(t, errors.Is(err, ErrAccountNotFound))
		_, errCode := store.GetStore().GetAccountByCode(missingCode)
		assert.Equal(t, http.StatusNotFound, errCode)

		_, exists, err := GetSyncMarker(provider.Name(), missingCode)
		require.Nil(t, err)
		assert.False(t, exists)

		_, err = UpdateLocalAccountData(context.Background(), nil, nil, missingCode)
		assert.NotNil(t, err)
	})
}

func getFailureRatioSum(t *testing.T) float64 {
	rows, err := view.RetrieveData(metrics.ViewSyncCountFloat)
	require.Nil(t, err)

	for _, row := range rows {
		for _, rowTag := range row.Tags {
			if rowTag.Key != metrics.MetricNameTag || rowTag.Value != metrics.CountBillingSyncFailureRatio {
				continue
			}
			if data, ok := row.Data.(*view.SumData); ok {
				return data.Value
			}
		}
	}
	return 0
}

func TestSyncJobStatusFailureRatio(t *testing.T) {
	jobStatus := newSyncJobStatus("fake")
	assert.Equal(t, float64(0), jobStatus.FailureRatio())

	jobStatus.add(SyncAccountStatus{AccountCode: "a1", Status: SyncStatusSkipped})
	assert.Equal(t, float64(0), jobStatus.FailureRatio())

	jobStatus.add(SyncAccountStatus{AccountCode: "a2", Status: SyncStatusFailure})
	jobStatus.add(SyncAccountStatus{AccountCode: "a3", Status: SyncStatusSuccess})
	assert.Equal(t, 0.5, jobStatus.FailureRatio())
}

func TestSyncAccounts(t *testing.T) {
	provider := newFakeProvider()
	accountCodes := []string{newAccountCode(), newAccountCode()}
	for _, accountCode := range accountCodes {
		provider.addAccount(accountCode)
	}
	missingCode := newAccountCode()

	require.Nil(t, metrics.RegisterViews())
	ratioBefore := getFailureRatioSum(t)

	jobStatus, err := SyncAccounts(context.Background(), provider,
		[]string{accountCodes[0], missingCode, "", accountCodes[1]}, SyncOptions{})
	require.NotNil(t, err)
	assert.InDelta(t, 1.0/3, jobStatus.FailureRatio(), 1e-9)
	assert.InDelta(t, 1.0/3, getFailureRatioSum(t)-ratioBefore, 1e-9)
	assert.Len(t, multierr.Errors(err), 1)
	assert.True(t, errors.Is(err, ErrAccountNotFound))

	assert.NotEmpty(t, jobStatus.RunID)
	assert.Equal(t, provider.Name(), jobStatus.Provider)
	assert.Equal(t, 3, jobStatus.Total())
	require.Len(t, jobStatus.Success, 2)
	assert.Equal(t, accountCodes[0], jobStatus.Success[0].AccountCode)
	assert.NotZero(t, jobStatus.Success[0].AccountID)
	assert.Equal(t, accountCodes[1], jobStatus.Success[1].AccountCode)
	require.Len(t, jobStatus.Failures, 1)
	assert.Equal(t, missingCode, jobStatus.Failures[0].AccountCode)
	assert.NotEmpty(t, jobStatus.Failures[0].Message)

	t.Run("SkipsRecentlySynced", func(t *testing.T) {
		jobStatus, err := SyncAccounts(context.Background(), provider,
			accountCodes, SyncOptions{SkipSyncedWithin: time.Hour})
		require.Nil(t, err)
		assert.Len(t, jobStatus.Skipped, 2)
		assert.Len(t, jobStatus.Success, 0)
		for _, accountCode := range accountCodes {
			assert.Equal(t, 1, provider.calls[accountCode])
		}
	})

	t.Run("FallsBackToLocalSyncTime", func(t *testing.T) {
		require.Nil(t, DeleteSyncMarker(provider.Name(), accountCodes[0]))

		jobStatus, err := SyncAccounts(context.Background(), provider,
			accountCodes[:1], SyncOptions{SkipSyncedWithin: time.Hour})
		require.Nil(t, err)
		assert.Len(t, jobStatus.Skipped, 1)
		assert.Equal(t, 1, provider.calls[accountCodes[0]])
	})

	t.Run("SyncsStaleAccounts", func(t *testing.T) {
		jobStatus, err := SyncAccounts(context.Background(), provider,
			accountCodes, SyncOptions{SkipSyncedWithin: time.Nanosecond})
		require.Nil(t, err)
		assert.Len(t, jobStatus.Success, 2)
		for _, accountCode := range accountCodes {
			assert.Equal(t, 2, provider.calls[accountCode])
		}
	})

	t.Run("CanceledContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		jobStatus, err := SyncAccounts(ctx, provider, accountCodes, SyncOptions{})
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Equal(t, 0, jobStatus.Total())
	})
}

func TestSyncAllAccounts(t *testing.T) {
	provider := newFakeProvider()
	accountCode := newAccountCode()
	provider.addAccount(accountCode)

	_, err := UpdateLocalAccountData(context.Background(), provider, nil, accountCode)
	require.Nil(t, err)

	// Other local accounts are unknown to this provider and fail.
	jobStatus, _ := SyncAllAccounts(context.Background(), provider, SyncOptions{})
	require.NotNil(t, jobStatus)
	var synced bool
	for _, status := range jobStatus.Success {
		if status.AccountCode == accountCode {
			synced = true
		}
	}
	assert.True(t, synced)
	assert.Equal(t, 2, provider.calls[accountCode])

	jobStatus, _ = SyncAllAccounts(context.Background(), provider, SyncOptions{SkipSyncedWithin: time.Hour})
	require.NotNil(t, jobStatus)
	for _, status := range append(jobStatus.Success, jobStatus.Failures...) {
		assert.NotEqual(t, accountCode, status.AccountCode)
	}
	assert.Equal(t, 2, provider.calls[accountCode])
}
