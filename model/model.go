package model

import (
	"billsync/model/model"
)

// Model - Interface of all methods to be implemented by the stores.
type Model interface {
	// billing records
	GetSchema(record interface{}) (*model.Schema, int)
	GetRecordByUniqueField(record interface{}, field string, value interface{}) int
	SaveRecord(record interface{}) int
	DeleteRecord(record interface{}) int
	GetRelatedRecords(record interface{}, relationName string, out interface{}) int

	// account
	GetAccountByCode(accountCode string) (*model.Account, int)
	GetAccountWithRelations(accountCode string) (*model.Account, int)
	GetAllAccountCodes() ([]string, int)
	GetAccountCodesSyncedBefore(syncedBefore int64) ([]string, int)
}
