package postgres

import (
	"net/http"
	"reflect"

	"github.com/jinzhu/gorm"
	log "github.com/sirupsen/logrus"

	C "billsync/config"
	"billsync/model/model"
)

type Postgres struct{}

func (pg *Postgres) GetSchema(record interface{}) (*model.Schema, int) {
	schema, err := model.GetSchema(C.GetServices().Db, record)
	if err != nil {
		log.WithError(err).WithField("type", reflect.TypeOf(record)).Error("Failed to get schema of record.")
		return nil, http.StatusBadRequest
	}

	return schema, http.StatusFound
}

// GetRecordByUniqueField Loads the record having the given value on the
// field with the given remote name into record.
func (pg *Postgres) GetRecordByUniqueField(record interface{}, field string, value interface{}) int {
	logCtx := log.WithFields(log.Fields{"field": field, "value": value})

	schema, errCode := pg.GetSchema(record)
	if errCode != http.StatusFound {
		return errCode
	}

	schemaField, exists := schema.GetField(field)
	if !exists || value == nil {
		logCtx.Error("Invalid unique field lookup.")
		return http.StatusBadRequest
	}

	db := C.GetServices().Db
	err := db.Where(schemaField.DBName+" = ?", value).First(record).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return http.StatusNotFound
		}

		logCtx.WithError(err).Error("Failed to get record by unique field.")
		return http.StatusInternalServerError
	}

	return http.StatusFound
}

// SaveRecord Creates the record when it has no primary key, updates otherwise.
// Associations loaded on the record are never saved along.
func (pg *Postgres) SaveRecord(record interface{}) int {
	if _, err := model.GetRecordType(record); err != nil {
		return http.StatusBadRequest
	}

	db := C.GetServices().Db
	isNew := db.NewRecord(record)

	if err := db.Set("gorm:save_associations", false).Save(record).Error; err != nil {
		log.WithError(err).WithField("type", reflect.TypeOf(record)).Error("Failed to save record.")
		return http.StatusInternalServerError
	}

	if isNew {
		return http.StatusCreated
	}
	return http.StatusAccepted
}

func (pg *Postgres) DeleteRecord(record interface{}) int {
	if _, err := model.GetRecordType(record); err != nil {
		return http.StatusBadRequest
	}

	db := C.GetServices().Db
	// Delete without primary key would delete every row of the table.
	if db.NewRecord(record) {
		return http.StatusBadRequest
	}

	if err := db.Delete(record).Error; err != nil {
		log.WithError(err).WithField("type", reflect.TypeOf(record)).Error("Failed to delete record.")
		return http.StatusInternalServerError
	}

	return http.StatusAccepted
}

// GetRelatedRecords Loads the records related to record through the relation
// with the given remote name. out must be a pointer to the related struct for
// singular relations and a pointer to a slice of it for plural ones.
func (pg *Postgres) GetRelatedRecords(record interface{}, relationName string, out interface{}) int {
	logCtx := log.WithField("relation", relationName)

	schema, errCode := pg.GetSchema(record)
	if errCode != http.StatusFound {
		return errCode
	}

	relation, exists := schema.GetRelation(relationName)
	if !exists || len(relation.ForeignDBNames) == 0 ||
		len(relation.ForeignDBNames) != len(relation.AssociationForeignFieldNames) {
		logCtx.Error("Invalid relation on related records lookup.")
		return http.StatusBadRequest
	}

	db := C.GetServices().Db
	if db.NewRecord(record) {
		return http.StatusNotFound
	}

	recordValue := reflect.ValueOf(record).Elem()
	query := db
	for i, foreignDBName := range relation.ForeignDBNames {
		ownerValue := recordValue.FieldByName(relation.AssociationForeignFieldNames[i])
		if !ownerValue.IsValid() {
			logCtx.Error("Missing owner field on related records lookup.")
			return http.StatusBadRequest
		}
		query = query.Where(foreignDBName+" = ?", ownerValue.Interface())
	}

	if relation.IsPlural() {
		if err := query.Order("id").Find(out).Error; err != nil {
			logCtx.WithError(err).Error("Failed to get related records.")
			return http.StatusInternalServerError
		}
		if reflect.ValueOf(out).Elem().Len() == 0 {
			return http.StatusNotFound
		}
		return http.StatusFound
	}

	if err := query.First(out).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return http.StatusNotFound
		}
		logCtx.WithError(err).Error("Failed to get related record.")
		return http.StatusInternalServerError
	}

	return http.StatusFound
}
