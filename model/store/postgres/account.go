package postgres

import (
	"net/http"
	"time"

	"github.com/jinzhu/gorm"
	log "github.com/sirupsen/logrus"

	C "billsync/config"
	"billsync/model/model"
)

func (pg *Postgres) GetAccountByCode(accountCode string) (*model.Account, int) {
	if accountCode == "" {
		return nil, http.StatusBadRequest
	}

	account := model.Account{}

	db := C.GetServices().Db
	if err := db.Where("account_code = ?", accountCode).First(&account).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, http.StatusNotFound
		}

		log.WithField("account_code", accountCode).WithError(err).
			Error("Failed to get account by code.")
		return nil, http.StatusInternalServerError
	}

	return &account, http.StatusFound
}

// GetAccountWithRelations Returns the account along with its billing info,
// subscriptions and transactions.
func (pg *Postgres) GetAccountWithRelations(accountCode string) (*model.Account, int) {
	if accountCode == "" {
		return nil, http.StatusBadRequest
	}

	account := model.Account{}

	db := C.GetServices().Db
	err := db.Preload("BillingInfo").
		Preload("Subscriptions", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Transactions", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("account_code = ?", accountCode).First(&account).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, http.StatusNotFound
		}

		log.WithField("account_code", accountCode).WithError(err).
			Error("Failed to get account with relations.")
		return nil, http.StatusInternalServerError
	}

	return &account, http.StatusFound
}

func (pg *Postgres) GetAllAccountCodes() ([]string, int) {
	accountCodes := make([]string, 0)

	db := C.GetServices().Db
	if err := db.Model(&model.Account{}).Order("id").Pluck("account_code", &accountCodes).Error; err != nil {
		log.WithError(err).Error("Failed to get all account codes.")
		return nil, http.StatusInternalServerError
	}

	if len(accountCodes) == 0 {
		return accountCodes, http.StatusNotFound
	}

	return accountCodes, http.StatusFound
}

// GetAccountCodesSyncedBefore Returns the accounts never synced or last
// synced before the given unix timestamp.
func (pg *Postgres) GetAccountCodesSyncedBefore(syncedBefore int64) ([]string, int) {
	if syncedBefore <= 0 {
		return nil, http.StatusBadRequest
	}

	accountCodes := make([]string, 0)

	db := C.GetServices().Db
	err := db.Model(&model.Account{}).
		Where("last_synced_at IS NULL OR last_synced_at < ?", time.Unix(syncedBefore, 0).UTC()).
		Order("id").Pluck("account_code", &accountCodes).Error
	if err != nil {
		log.WithError(err).Error("Failed to get account codes synced before.")
		return nil, http.StatusInternalServerError
	}

	if len(accountCodes) == 0 {
		return accountCodes, http.StatusNotFound
	}

	return accountCodes, http.StatusFound
}
