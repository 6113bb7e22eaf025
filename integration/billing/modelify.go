package billing

import (
	"net/http"
	"reflect"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"billsync/integration/resource"
	"billsync/metrics"
	M "billsync/model"
	"billsync/model/model"
	U "billsync/util"
)

// PreSaveFunc Called with the record right before it is persisted.
type PreSaveFunc func(record interface{}) error

type modelifyOptions struct {
	existing    interface{}
	preSave     PreSaveFunc
	removeEmpty bool
}

type ModelifyOption func(*modelifyOptions)

// WithExisting Updates the given record instead of looking one up.
func WithExisting(record interface{}) ModelifyOption {
	return func(o *modelifyOptions) {
		if isNilRecord(record) {
			return
		}
		o.existing = record
	}
}

func WithPreSave(preSave PreSaveFunc) ModelifyOption {
	return func(o *modelifyOptions) {
		o.preSave = preSave
	}
}

// WithRemoveEmpty Keeps local values when the remote value is empty.
func WithRemoveEmpty() ModelifyOption {
	return func(o *modelifyOptions) {
		o.removeEmpty = true
	}
}

// SubRelations Nested remote resources resolved into related local records,
// by remote relation name.
var SubRelations = map[string]reflect.Type{
	"billing_info":  reflect.TypeOf(model.BillingInfo{}),
	"subscriptions": reflect.TypeOf(model.Subscription{}),
	"transactions":  reflect.TypeOf(model.Transaction{}),
}

func isNilRecord(record interface{}) bool {
	if record == nil {
		return true
	}
	value := reflect.ValueOf(record)
	return value.Kind() == reflect.Ptr && value.IsNil()
}

// Modelify Mirrors a remote resource into a local record of the type of
// recordType, a pointer to a zero record. The record is created or updated
// and saved, then the declared sub relations are mirrored the same way.
// Returns a pointer to the saved record.
func Modelify(store M.Model, res resource.Resource, recordType interface{}, opts ...ModelifyOption) (interface{}, error) {
	if resource.IsNil(res) {
		return nil, ErrNilResource
	}

	options := &modelifyOptions{}
	for _, opt := range opts {
		opt(options)
	}

	schema, errCode := store.GetSchema(recordType)
	if errCode != http.StatusFound {
		return nil, newStoreError("describe", reflect.TypeOf(recordType).String(), errCode)
	}

	if options.existing != nil && reflect.TypeOf(options.existing) != reflect.PtrTo(schema.Type) {
		return nil, errors.Errorf("existing record of type %s given for %s",
			reflect.TypeOf(options.existing), schema.Type)
	}

	logCtx := log.WithFields(log.Fields{"nodename": res.Nodename(), "table": schema.TableName})

	remoteData := resource.Snapshot(res)
	logCtx.WithField("remote_data", remoteData).Debug("Modelify record input.")

	updates := getModelUpdates(schema, remoteData, options.removeEmpty)
	logCtx.WithField("updates", updates).Debug("Modelify pending updates.")

	record, err := resolveRecord(store, schema, updates, options.existing, logCtx)
	if err != nil {
		return nil, err
	}

	// Sorted for deterministic errors.
	names := make([]string, 0, len(updates))
	for name := range updates {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := assignField(record, schema.Fields[name], updates[name]); err != nil {
			return nil, errors.Wrapf(err, "failed to map %s on %s", name, schema.TableName)
		}
	}

	if options.preSave != nil {
		if err := options.preSave(record); err != nil {
			return nil, errors.Wrapf(err, "presave failed on %s", schema.TableName)
		}
	}

	errCode = store.SaveRecord(record)
	switch errCode {
	case http.StatusCreated:
		metrics.CountInt(metrics.CountBillingRecordsCreated, 1)
	case http.StatusAccepted:
		metrics.CountInt(metrics.CountBillingRecordsUpdated, 1)
	default:
		return nil, newStoreError("save", schema.TableName, errCode)
	}

	if err := modelifyRelations(store, res, schema, record); err != nil {
		return nil, err
	}

	return record, nil
}

// ModelifyAccount Mirrors a remote account resource into an Account.
func ModelifyAccount(store M.Model, res resource.Resource, opts ...ModelifyOption) (*model.Account, error) {
	record, err := Modelify(store, res, &model.Account{}, opts...)
	if err != nil {
		return nil, err
	}
	return record.(*model.Account), nil
}

// getModelUpdates Filters the remote data to the mirrored fields of the schema.
// Primary keys, foreign keys and relations are never part of the updates.
func getModelUpdates(schema *model.Schema, remoteData map[string]interface{}, removeEmpty bool) map[string]interface{} {
	updates := make(map[string]interface{})
	for name, value := range remoteData {
		field, exists := schema.GetField(name)
		if !exists {
			continue
		}

		if field.IsChoice() {
			value = normalizeChoice(value)
		}

		if removeEmpty && U.IsEmptyValue(value) {
			continue
		}
		updates[name] = value
	}
	return updates
}

// resolveRecord Returns the record to update: the existing one when given,
// else the one matching the unique lookup field, else a new one.
func resolveRecord(store M.Model, schema *model.Schema, updates map[string]interface{},
	existing interface{}, logCtx *log.Entry) (interface{}, error) {

	if existing != nil {
		logCtx.Debug("Using given record for update.")
		return existing, nil
	}

	if !schema.HasUniqueField() {
		return schema.NewRecord(), nil
	}

	uniqueValue, exists := updates[schema.UniqueField]
	if !exists || U.IsEmptyValue(uniqueValue) {
		return nil, &ConfigurationError{RecordType: schema.TableName, UniqueField: schema.UniqueField}
	}

	lookupValue, err := getLookupValue(schema, uniqueValue)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid value for unique field %s", schema.UniqueField)
	}

	record := schema.NewRecord()
	errCode := store.GetRecordByUniqueField(record, schema.UniqueField, lookupValue)
	switch errCode {
	case http.StatusFound:
		logCtx.WithField(schema.UniqueField, lookupValue).Debug("Found existing record matching remote data.")
		return record, nil
	case http.StatusNotFound:
		logCtx.WithField(schema.UniqueField, lookupValue).Debug("No record matching remote data. Creating new.")
		return schema.NewRecord(), nil
	}

	return nil, newStoreError("lookup", schema.TableName, errCode)
}

func getLookupValue(schema *model.Schema, value interface{}) (interface{}, error) {
	field := schema.Fields[schema.UniqueField]
	structField, exists := schema.Type.FieldByName(field.FieldName)
	if !exists {
		return nil, errors.Errorf("missing field %s", field.FieldName)
	}

	coerced, err := coerceValue(value, structField.Type)
	if err != nil {
		return nil, err
	}
	return coerced.Interface(), nil
}

func modelifyRelations(store M.Model, res resource.Resource, schema *model.Schema, record interface{}) error {
	names := make([]string, 0, len(schema.Relations))
	for name := range schema.Relations {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		relation := schema.Relations[name]
		if elemType, exists := SubRelations[name]; !exists || elemType != relation.ElemType {
			continue
		}

		var err error
		if relation.IsPlural() {
			err = modelifyPluralRelation(store, res, record, relation)
		} else {
			err = modelifySingularRelation(store, res, record, relation)
		}
		if err != nil {
			return errors.Wrapf(err, "failed to mirror %s of %s", name, schema.TableName)
		}
	}

	return nil
}

// linkToOwner Sets the foreign keys of a related record to the owner.
func linkToOwner(owner interface{}, relation *model.SchemaRelation) PreSaveFunc {
	return func(related interface{}) error {
		ownerValue := reflect.ValueOf(owner).Elem()
		relatedValue := reflect.ValueOf(related).Elem()

		for i, foreignFieldName := range relation.ForeignFieldNames {
			if i >= len(relation.AssociationForeignFieldNames) {
				return errors.Errorf("invalid foreign keys on relation %s", relation.Name)
			}

			reference := ownerValue.FieldByName(relation.AssociationForeignFieldNames[i])
			foreignKey := relatedValue.FieldByName(foreignFieldName)
			if !reference.IsValid() || !foreignKey.IsValid() || !foreignKey.CanSet() {
				return errors.Errorf("invalid foreign key %s on relation %s", foreignFieldName, relation.Name)
			}

			coerced, err := coerceValue(reference.Interface(), foreignKey.Type())
			if err != nil {
				return err
			}
			foreignKey.Set(coerced)
		}
		return nil
	}
}

func getLocalRelated(store M.Model, record interface{}, relation *model.SchemaRelation) (interface{}, error) {
	fieldValue := reflect.ValueOf(record).Elem().FieldByName(relation.FieldName)
	if fieldValue.Kind() == reflect.Ptr && !fieldValue.IsNil() {
		return fieldValue.Interface(), nil
	}

	related := relation.NewElem()
	errCode := store.GetRelatedRecords(record, relation.Name, related)
	switch errCode {
	case http.StatusFound:
		return related, nil
	case http.StatusNotFound:
		return nil, nil
	}
	return nil, newStoreError("get related", relation.Name, errCode)
}

func setRelationField(record interface{}, relation *model.SchemaRelation, related interface{}) {
	fieldValue := reflect.ValueOf(record).Elem().FieldByName(relation.FieldName)
	if related == nil {
		fieldValue.Set(reflect.Zero(fieldValue.Type()))
		return
	}

	relatedValue := reflect.ValueOf(related)
	if fieldValue.Kind() != reflect.Ptr {
		relatedValue = relatedValue.Elem()
	}
	fieldValue.Set(relatedValue)
}

func modelifySingularRelation(store M.Model, res resource.Resource,
	record interface{}, relation *model.SchemaRelation) error {

	local, err := getLocalRelated(store, record, relation)
	if err != nil {
		return err
	}

	remote, exposed := res.Related(relation.Name)
	if exposed && !resource.IsNil(remote) {
		related, err := Modelify(store, remote, relation.NewElem(),
			WithExisting(local), WithPreSave(linkToOwner(record, relation)))
		if err != nil {
			return err
		}

		setRelationField(record, relation, related)
		return nil
	}

	if local == nil {
		return nil
	}

	// Removed remotely.
	if errCode := store.DeleteRecord(local); errCode != http.StatusAccepted {
		return newStoreError("delete", relation.Name, errCode)
	}
	metrics.CountInt(metrics.CountBillingRecordsDeleted, 1)
	setRelationField(record, relation, nil)
	return nil
}

// modelifyPluralRelation Mirrors every exposed element and deletes the local
// elements no longer exposed. Elements are matched on their unique lookup field.
func modelifyPluralRelation(store M.Model, res resource.Resource,
	record interface{}, relation *model.SchemaRelation) error {

	locals := reflect.New(reflect.SliceOf(relation.ElemType))
	errCode := store.GetRelatedRecords(record, relation.Name, locals.Interface())
	if errCode != http.StatusFound && errCode != http.StatusNotFound {
		return newStoreError("get related", relation.Name, errCode)
	}
	localList := locals.Elem()

	relatedSchema, errCode := store.GetSchema(relation.NewElem())
	if errCode != http.StatusFound {
		return newStoreError("describe", relation.Name, errCode)
	}

	localByUniqueValue := make(map[string]interface{})
	if relatedSchema.HasUniqueField() {
		uniqueField := relatedSchema.Fields[relatedSchema.UniqueField]
		for i := 0; i < localList.Len(); i++ {
			local := localList.Index(i).Addr().Interface()
			value, _ := getFieldValue(local, uniqueField.FieldName)
			if key, err := U.GetValueAsString(value); err == nil && key != "" {
				localByUniqueValue[key] = local
			}
		}
	}

	remotes, _ := res.RelatedList(relation.Name)

	fieldValue := reflect.ValueOf(record).Elem().FieldByName(relation.FieldName)
	mirrored := reflect.MakeSlice(fieldValue.Type(), 0, len(remotes))
	// Index in mirrored by primary key. A repeated remote element updates the
	// same row, so it replaces the earlier entry.
	keptPrimaryKeys := make(map[string]int)

	for _, remote := range remotes {
		if resource.IsNil(remote) {
			continue
		}

		opts := []ModelifyOption{WithPreSave(linkToOwner(record, relation))}
		if relatedSchema.HasUniqueField() {
			if value, exists := remote.Attribute(relatedSchema.UniqueField); exists {
				if key, err := U.GetValueAsString(value); err == nil {
					if local, found := localByUniqueValue[key]; found {
						opts = append(opts, WithExisting(local))
					}
				}
			}
		}

		related, err := Modelify(store, remote, relation.NewElem(), opts...)
		if err != nil {
			return err
		}

		primaryKey, _ := getFieldValue(related, relatedSchema.PrimaryFieldName)
		key, _ := U.GetValueAsString(primaryKey)

		relatedValue := reflect.ValueOf(related)
		if fieldValue.Type().Elem().Kind() != reflect.Ptr {
			relatedValue = relatedValue.Elem()
		}
		if index, kept := keptPrimaryKeys[key]; kept {
			mirrored.Index(index).Set(relatedValue)
			continue
		}
		keptPrimaryKeys[key] = mirrored.Len()
		mirrored = reflect.Append(mirrored, relatedValue)
	}

	for i := 0; i < localList.Len(); i++ {
		local := localList.Index(i).Addr().Interface()
		primaryKey, _ := getFieldValue(local, relatedSchema.PrimaryFieldName)
		key, _ := U.GetValueAsString(primaryKey)
		if _, kept := keptPrimaryKeys[key]; kept {
			continue
		}

		// Removed remotely.
		if errCode := store.DeleteRecord(local); errCode != http.StatusAccepted {
			return newStoreError("delete", relation.Name, errCode)
		}
		metrics.CountInt(metrics.CountBillingRecordsDeleted, 1)
	}

	fieldValue.Set(mirrored)
	return nil
}
