package store

import (
	"billsync/model"
	storePostgres "billsync/model/store/postgres"
)

// GetStore - Should decide on which model implementation to use by
// configuration and return the store. Postgres store also serves sqlite3
// as both are accessed through gorm.
func GetStore() model.Model {
	var store model.Model
	store = &storePostgres.Postgres{}
	return store
}
