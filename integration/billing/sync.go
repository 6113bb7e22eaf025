package billing

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	cacheRedis "billsync/cache/redis"
	C "billsync/config"
	"billsync/integration/resource"
	"billsync/metrics"
	"billsync/model/model"
	"billsync/model/store"
	U "billsync/util"
)

const (
	SyncStatusSuccess = "success"
	SyncStatusFailure = "failure"
	SyncStatusSkipped = "skipped"
)

const (
	syncMarkerPrefix       = "billing_sync:last_synced_at"
	syncMarkerExpiryInSecs = 30 * U.DayInSecs
)

type SyncOptions struct {
	// SkipSyncedWithin Accounts mirrored more recently than this are skipped.
	// Zero syncs every account.
	SkipSyncedWithin time.Duration
}

type SyncAccountStatus struct {
	AccountCode string `json:"account_code"`
	AccountID   uint64 `json:"account_id,omitempty"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
}

type SyncJobStatus struct {
	RunID     string              `json:"run_id"`
	Provider  string              `json:"provider"`
	StartedAt time.Time           `json:"started_at"`
	Success   []SyncAccountStatus `json:"success"`
	Failures  []SyncAccountStatus `json:"failures"`
	Skipped   []SyncAccountStatus `json:"skipped"`
}

func newSyncJobStatus(providerName string) *SyncJobStatus {
	return &SyncJobStatus{
		RunID:     U.GetUUID(),
		Provider:  providerName,
		StartedAt: U.TimeNowUTC(),
		Success:   make([]SyncAccountStatus, 0),
		Failures:  make([]SyncAccountStatus, 0),
		Skipped:   make([]SyncAccountStatus, 0),
	}
}

func (s *SyncJobStatus) add(status SyncAccountStatus) {
	switch status.Status {
	case SyncStatusSuccess:
		s.Success = append(s.Success, status)
	case SyncStatusFailure:
		s.Failures = append(s.Failures, status)
	case SyncStatusSkipped:
		s.Skipped = append(s.Skipped, status)
	}
}

func (s *SyncJobStatus) Total() int {
	return len(s.Success) + len(s.Failures) + len(s.Skipped)
}

// FailureRatio Failed accounts over the synced and failed ones. Skipped
// accounts are not counted. Zero when no account was attempted.
func (s *SyncJobStatus) FailureRatio() float64 {
	attempted := len(s.Success) + len(s.Failures)
	if attempted == 0 {
		return 0
	}
	return float64(len(s.Failures)) / float64(attempted)
}

func getSyncMarkerKey(providerName, accountCode string) (*cacheRedis.Key, error) {
	return cacheRedis.NewKey(providerName, accountCode, syncMarkerPrefix, "")
}

// SetSyncMarker Records the time the account was last mirrored from the provider.
func SetSyncMarker(providerName, accountCode string, syncedAt time.Time) error {
	key, err := getSyncMarkerKey(providerName, accountCode)
	if err != nil {
		return err
	}
	return cacheRedis.Set(key, fmt.Sprintf("%d", syncedAt.Unix()), syncMarkerExpiryInSecs)
}

// GetSyncMarker Returns the last mirrored time of the account and false
// when no marker exists.
func GetSyncMarker(providerName, accountCode string) (time.Time, bool, error) {
	key, err := getSyncMarkerKey(providerName, accountCode)
	if err != nil {
		return time.Time{}, false, err
	}

	value, err := cacheRedis.Get(key)
	if err == redis.ErrNil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	timestamp, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "invalid sync marker value")
	}
	return U.UnixToTime(timestamp), true, nil
}

func DeleteSyncMarker(providerName, accountCode string) error {
	key, err := getSyncMarkerKey(providerName, accountCode)
	if err != nil {
		return err
	}
	return cacheRedis.Del(key)
}

// getLastSyncedAt Reads the sync marker, falling back to the local account
// when the cache is unavailable or has no marker.
func getLastSyncedAt(providerName, accountCode string) (time.Time, bool) {
	if C.IsCacheEnabled() {
		syncedAt, exists, err := GetSyncMarker(providerName, accountCode)
		if err != nil {
			log.WithField("account_code", accountCode).WithError(err).
				Warn("Failed to get sync marker.")
		} else if exists {
			return syncedAt, true
		}
	}

	account, errCode := store.GetStore().GetAccountByCode(accountCode)
	if errCode != http.StatusFound || account.LastSyncedAt == nil {
		return time.Time{}, false
	}
	return *account.LastSyncedAt, true
}

func getResourceAccountCode(res resource.Resource) string {
	value, exists := res.Attribute("account_code")
	if !exists {
		return ""
	}
	accountCode, err := U.GetValueAsString(value)
	if err != nil {
		return ""
	}
	return accountCode
}

// UpdateLocalAccountData Mirrors the remote account into the local account
// records. The account is fetched from the provider when res is nil.
func UpdateLocalAccountData(ctx context.Context, provider Provider,
	res resource.Resource, accountCode string) (*model.Account, error) {

	if provider == nil {
		return nil, errors.New("nil billing provider")
	}

	if resource.IsNil(res) {
		if accountCode == "" {
			return nil, ErrEmptyAccountCode
		}

		metrics.Increment(metrics.IncrBillingSyncRemoteFetch)
		remoteAccount, err := provider.GetAccount(ctx, accountCode)
		if err != nil {
			metrics.Increment(metrics.IncrBillingSyncRemoteFailure)
			return nil, errors.Wrapf(err, "failed to get account %s from %s", accountCode, provider.Name())
		}
		if resource.IsNil(remoteAccount) {
			return nil, errors.Wrapf(ErrAccountNotFound, "account %s on %s", accountCode, provider.Name())
		}
		res = remoteAccount
	}

	if accountCode == "" {
		accountCode = getResourceAccountCode(res)
	}

	logCtx := log.WithFields(log.Fields{"provider": provider.Name(), "account_code": accountCode})
	startTime := time.Now()

	syncedAt := U.TimeNowUTC()
	stampSyncedAt := func(record interface{}) error {
		account, ok := record.(*model.Account)
		if !ok {
			return errors.New("invalid account record")
		}
		account.LastSyncedAt = &syncedAt
		return nil
	}

	account, err := ModelifyAccount(store.GetStore(), res, WithPreSave(stampSyncedAt))
	if err != nil {
		logCtx.WithError(err).Error("Failed to update local account data.")
		return nil, err
	}
	metrics.RecordLatencySince(metrics.LatencyBillingSyncAccount, startTime)

	if C.IsCacheEnabled() {
		if err := SetSyncMarker(provider.Name(), account.AccountCode, syncedAt); err != nil {
			logCtx.WithError(err).Error("Failed to set sync marker.")
		}
	}

	logCtx.WithField("account_id", account.ID).Info("Updated local account data.")
	return account, nil
}

// SyncAccounts Mirrors the given accounts one by one. A failed account does
// not stop the run. Returns the status of every account and the combined
// error of the failed ones.
func SyncAccounts(ctx context.Context, provider Provider,
	accountCodes []string, options SyncOptions) (*SyncJobStatus, error) {

	if provider == nil {
		return nil, errors.New("nil billing provider")
	}

	jobStatus := newSyncJobStatus(provider.Name())
	defer metrics.RecordLatencySince(metrics.LatencyBillingSyncJob, time.Now())

	logCtx := log.WithFields(log.Fields{"provider": provider.Name(), "run_id": jobStatus.RunID})
	logCtx.WithField("accounts", len(accountCodes)).Info("Starting billing sync.")

	var syncErr error
	for _, accountCode := range accountCodes {
		if ctx.Err() != nil {
			syncErr = multierr.Append(syncErr, ctx.Err())
			break
		}

		if accountCode == "" {
			continue
		}

		if options.SkipSyncedWithin > 0 {
			if syncedAt, exists := getLastSyncedAt(provider.Name(), accountCode); exists &&
				time.Since(syncedAt) < options.SkipSyncedWithin {

				metrics.Increment(metrics.IncrBillingSyncAccountSkipped)
				jobStatus.add(SyncAccountStatus{
					AccountCode: accountCode,
					Status:      SyncStatusSkipped,
					Message:     fmt.Sprintf("synced at %s", syncedAt.Format(time.RFC3339)),
				})
				continue
			}
		}

		account, err := UpdateLocalAccountData(ctx, provider, nil, accountCode)
		if err != nil {
			metrics.Increment(metrics.IncrBillingSyncAccountFailure)
			syncErr = multierr.Append(syncErr, errors.Wrapf(err, "account %s", accountCode))
			jobStatus.add(SyncAccountStatus{
				AccountCode: accountCode,
				Status:      SyncStatusFailure,
				Message:     err.Error(),
			})
			continue
		}

		metrics.Increment(metrics.IncrBillingSyncAccountSuccess)
		jobStatus.add(SyncAccountStatus{
			AccountCode: accountCode,
			AccountID:   account.ID,
			Status:      SyncStatusSuccess,
		})
	}

	if len(jobStatus.Success)+len(jobStatus.Failures) > 0 {
		metrics.CountFloat(metrics.CountBillingSyncFailureRatio, jobStatus.FailureRatio())
	}

	logCtx.WithFields(log.Fields{
		"success":  len(jobStatus.Success),
		"failures": len(jobStatus.Failures),
		"skipped":  len(jobStatus.Skipped),
	}).Info("Completed billing sync.")

	return jobStatus, syncErr
}

// SyncAllAccounts Mirrors every local account. With SkipSyncedWithin set,
// only accounts not synced within the window are considered.
func SyncAllAccounts(ctx context.Context, provider Provider, options SyncOptions) (*SyncJobStatus, error) {
	var accountCodes []string
	var errCode int
	if options.SkipSyncedWithin > 0 {
		syncedBefore := U.TimeNowUTC().Add(-options.SkipSyncedWithin).Unix()
		accountCodes, errCode = store.GetStore().GetAccountCodesSyncedBefore(syncedBefore)
	} else {
		accountCodes, errCode = store.GetStore().GetAllAccountCodes()
	}

	if errCode != http.StatusFound && errCode != http.StatusNotFound {
		return nil, newStoreError("list", "accounts", errCode)
	}

	return SyncAccounts(ctx, provider, accountCodes, options)
}
