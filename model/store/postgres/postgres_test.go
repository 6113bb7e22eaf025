package postgres

import (
	"net/http"
	"os"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	C "billsync/config"
	"billsync/model/model"
	U "billsync/util"
)

func TestMain(m *testing.M) {
	config := &C.Configuration{Env: C.DEVELOPMENT, PrimaryDatastore: C.DatastoreTypeSQLite}
	C.InitConf(config)
	if err := C.InitDB(*config); err != nil {
		log.WithError(err).Fatal("Failed to initialize db.")
	}
	if err := C.GetServices().Db.AutoMigrate(model.BillingModels()...).Error; err != nil {
		log.WithError(err).Fatal("Failed to migrate billing models.")
	}

	retCode := m.Run()
	C.SafeFlushAllServices()
	os.Exit(retCode)
}

func createTestAccount(t *testing.T, pg *Postgres) *model.Account {
	account := &model.Account{
		AccountCode: "acc_" + U.RandomLowerAphaNumString(8),
		State:       model.AccountStateActive,
		Email:       "billing@example.com",
	}
	assert.Equal(t, http.StatusCreated, pg.SaveRecord(account))
	assert.NotZero(t, account.ID)
	return account
}

func TestSaveRecord(t *testing.T) {
	pg := &Postgres{}
	account := createTestAccount(t, pg)

	account.Email = "updated@example.com"
	assert.Equal(t, http.StatusAccepted, pg.SaveRecord(account))

	fetched, errCode := pg.GetAccountByCode(account.AccountCode)
	assert.Equal(t, http.StatusFound, errCode)
	assert.Equal(t, account.ID, fetched.ID)
	assert.Equal(t, "updated@example.com", fetched.Email)

	assert.Equal(t, http.StatusBadRequest, pg.SaveRecord(model.Account{}))
}

func TestSaveRecordSkipsAssociations(t *testing.T) {
	pg := &Postgres{}
	account := createTestAccount(t, pg)

	account.BillingInfo = &model.BillingInfo{AccountID: account.ID, LastFour: "4242"}
	assert.Equal(t, http.StatusAccepted, pg.SaveRecord(account))

	billingInfo := model.BillingInfo{}
	errCode := pg.GetRelatedRecords(account, "billing_info", &billingInfo)
	assert.Equal(t, http.StatusNotFound, errCode)
}

func TestGetRecordByUniqueField(t *testing.T) {
	pg := &Postgres{}
	account := createTestAccount(t, pg)

	t.Run("Found", func(t *testing.T) {
		fetched := &model.Account{}
		errCode := pg.GetRecordByUniqueField(fetched, "account_code", account.AccountCode)
		assert.Equal(t, http.StatusFound, errCode)
		assert.Equal(t, account.ID, fetched.ID)
	})

	t.Run("NotFound", func(t *testing.T) {
		errCode := pg.GetRecordByUniqueField(&model.Account{}, "account_code", "missing_"+U.RandomLowerAphaNumString(5))
		assert.Equal(t, http.StatusNotFound, errCode)
	})

	t.Run("InvalidField", func(t *testing.T) {
		errCode := pg.GetRecordByUniqueField(&model.Account{}, "user_id", 1)
		assert.Equal(t, http.StatusBadRequest, errCode)

		errCode = pg.GetRecordByUniqueField(&model.Account{}, "account_code", nil)
		assert.Equal(t, http.StatusBadRequest, errCode)
	})
}

func TestGetRelatedRecordsAndDelete(t *testing.T) {
	pg := &Postgres{}
	account := createTestAccount(t, pg)

	billingInfo := &model.BillingInfo{AccountID: account.ID, LastFour: "1111"}
	assert.Equal(t, http.StatusCreated, pg.SaveRecord(billingInfo))
	for _, uuid := range []string{"sub_" + U.RandomLowerAphaNumString(6), "sub_" + U.RandomLowerAphaNumString(6)} {
		assert.Equal(t, http.StatusCreated, pg.SaveRecord(&model.Subscription{AccountID: account.ID, UUID: uuid}))
	}

	fetchedBillingInfo := model.BillingInfo{}
	assert.Equal(t, http.StatusFound, pg.GetRelatedRecords(account, "billing_info", &fetchedBillingInfo))
	assert.Equal(t, "1111", fetchedBillingInfo.LastFour)

	subscriptions := make([]model.Subscription, 0)
	assert.Equal(t, http.StatusFound, pg.GetRelatedRecords(account, "subscriptions", &subscriptions))
	assert.Len(t, subscriptions, 2)

	transactions := make([]model.Transaction, 0)
	assert.Equal(t, http.StatusNotFound, pg.GetRelatedRecords(account, "transactions", &transactions))

	assert.Equal(t, http.StatusBadRequest, pg.GetRelatedRecords(account, "invoices", &transactions))
	assert.Equal(t, http.StatusNotFound, pg.GetRelatedRecords(&model.Account{}, "transactions", &transactions))

	assert.Equal(t, http.StatusAccepted, pg.DeleteRecord(&fetchedBillingInfo))
	assert.Equal(t, http.StatusNotFound, pg.GetRelatedRecords(account, "billing_info", &model.BillingInfo{}))

	// Never deletes without a primary key.
	assert.Equal(t, http.StatusBadRequest, pg.DeleteRecord(&model.Subscription{}))
	subscriptions = make([]model.Subscription, 0)
	assert.Equal(t, http.StatusFound, pg.GetRelatedRecords(account, "subscriptions", &subscriptions))
	assert.Len(t, subscriptions, 2)

	withRelations, errCode := pg.GetAccountWithRelations(account.AccountCode)
	assert.Equal(t, http.StatusFound, errCode)
	assert.Nil(t, withRelations.BillingInfo)
	assert.Len(t, withRelations.Subscriptions, 2)
	assert.Len(t, withRelations.Transactions, 0)
}

func TestGetAccountCodes(t *testing.T) {
	pg := &Postgres{}
	account := createTestAccount(t, pg)

	syncedAccount := createTestAccount(t, pg)
	syncedAt := U.TimeNowUTC()
	syncedAccount.LastSyncedAt = &syncedAt
	assert.Equal(t, http.StatusAccepted, pg.SaveRecord(syncedAccount))

	accountCodes, errCode := pg.GetAllAccountCodes()
	assert.Equal(t, http.StatusFound, errCode)
	assert.Contains(t, accountCodes, account.AccountCode)
	assert.Contains(t, accountCodes, syncedAccount.AccountCode)

	accountCodes, errCode = pg.GetAccountCodesSyncedBefore(time.Now().Add(-time.Hour).Unix())
	assert.Equal(t, http.StatusFound, errCode)
	assert.Contains(t, accountCodes, account.AccountCode)
	assert.NotContains(t, accountCodes, syncedAccount.AccountCode)

	_, errCode = pg.GetAccountCodesSyncedBefore(0)
	assert.Equal(t, http.StatusBadRequest, errCode)

	_, errCode = pg.GetAccountByCode("")
	assert.Equal(t, http.StatusBadRequest, errCode)
}
