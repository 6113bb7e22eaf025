package model

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/jinzhu/gorm"
)

const (
	// Tag for overriding the remote attribute name of a field.
	// A value of "-" excludes the field from mirroring.
	SyncTag = "sync"
	// Tag listing the allowed values of a choice field, comma separated.
	ChoicesTag = "choices"
)

const (
	RelationKindHasOne  = "has_one"
	RelationKindHasMany = "has_many"
)

var ErrInvalidRecord = errors.New("record must be a non-nil pointer to struct")

// UniqueLookupFielder Implemented by records which can be looked up by
// a remote attribute other than the primary key.
type UniqueLookupFielder interface {
	UniqueLookupField() string
}

// SchemaField A mirrored column of a record.
type SchemaField struct {
	// Name Remote attribute name.
	Name      string
	FieldName string
	DBName    string
	Choices   []string
}

func (f *SchemaField) IsChoice() bool {
	return len(f.Choices) > 0
}

// SchemaRelation A related record type reachable from a record.
type SchemaRelation struct {
	// Name Remote relation name.
	Name      string
	FieldName string
	Kind      string
	// ElemType Struct type of the related record.
	ElemType reflect.Type
	// ForeignFieldNames Fields on the related record holding the reference.
	ForeignFieldNames []string
	ForeignDBNames    []string
	// AssociationForeignFieldNames Fields on the owner the reference points to.
	AssociationForeignFieldNames []string
}

func (r *SchemaRelation) IsPlural() bool {
	return r.Kind == RelationKindHasMany
}

// NewElem Returns a pointer to a new zero related record.
func (r *SchemaRelation) NewElem() interface{} {
	return reflect.New(r.ElemType).Interface()
}

// Schema Field-level description of a record type, derived from gorm's
// model struct and the sync/choices tags.
type Schema struct {
	Type        reflect.Type
	TableName   string
	UniqueField string
	// PrimaryKey Column name of the primary key.
	PrimaryKey string
	// PrimaryFieldName Struct field name of the primary key.
	PrimaryFieldName string

	Fields    map[string]*SchemaField
	Relations map[string]*SchemaRelation
}

// FieldNames Returns the remote names of mirrored fields in sorted order.
func (s *Schema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Schema) GetField(name string) (*SchemaField, bool) {
	field, exists := s.Fields[name]
	return field, exists
}

func (s *Schema) GetRelation(name string) (*SchemaRelation, bool) {
	relation, exists := s.Relations[name]
	return relation, exists
}

func (s *Schema) HasUniqueField() bool {
	return s.UniqueField != ""
}

// NewRecord Returns a pointer to a new zero record of the schema type.
func (s *Schema) NewRecord() interface{} {
	return reflect.New(s.Type).Interface()
}

var schemaCache sync.Map

// GetRecordType Returns the struct type behind a record pointer.
func GetRecordType(record interface{}) (reflect.Type, error) {
	if record == nil {
		return nil, ErrInvalidRecord
	}

	value := reflect.ValueOf(record)
	if value.Kind() != reflect.Ptr || value.IsNil() || value.Elem().Kind() != reflect.Struct {
		return nil, ErrInvalidRecord
	}
	return value.Elem().Type(), nil
}

// GetSchema Builds or returns the cached schema of the record's type.
func GetSchema(db *gorm.DB, record interface{}) (*Schema, error) {
	recordType, err := GetRecordType(record)
	if err != nil {
		return nil, err
	}

	if schema, exists := schemaCache.Load(recordType); exists {
		return schema.(*Schema), nil
	}

	if db == nil {
		return nil, errors.New("db not initialized")
	}

	schema := buildSchema(db, record, recordType)
	actual, _ := schemaCache.LoadOrStore(recordType, schema)
	return actual.(*Schema), nil
}

func buildSchema(db *gorm.DB, record interface{}, recordType reflect.Type) *Schema {
	scope := db.NewScope(record)
	modelStruct := scope.GetModelStruct()

	schema := &Schema{
		Type:      recordType,
		TableName: scope.TableName(),
		Fields:    make(map[string]*SchemaField),
		Relations: make(map[string]*SchemaRelation),
	}

	if lookup, ok := reflect.New(recordType).Interface().(UniqueLookupFielder); ok {
		schema.UniqueField = lookup.UniqueLookupField()
	}

	for _, field := range modelStruct.PrimaryFields {
		schema.PrimaryKey = field.DBName
		schema.PrimaryFieldName = field.Name
		break
	}

	for _, field := range modelStruct.StructFields {
		if field.IsIgnored || field.IsPrimaryKey {
			continue
		}

		syncName := field.Tag.Get(SyncTag)
		if syncName == "-" {
			continue
		}

		if field.Relationship != nil {
			relation := buildRelation(field, syncName)
			if relation != nil {
				schema.Relations[relation.Name] = relation
			}
			continue
		}

		if !field.IsNormal || field.IsForeignKey {
			continue
		}

		// gorm managed timestamps.
		if field.Name == "CreatedAt" || field.Name == "UpdatedAt" || field.Name == "DeletedAt" {
			continue
		}

		name := field.DBName
		if syncName != "" {
			name = syncName
		}

		schemaField := &SchemaField{
			Name:      name,
			FieldName: field.Name,
			DBName:    field.DBName,
		}
		if choices := field.Tag.Get(ChoicesTag); choices != "" {
			for _, choice := range strings.Split(choices, ",") {
				schemaField.Choices = append(schemaField.Choices, strings.TrimSpace(choice))
			}
		}
		schema.Fields[name] = schemaField
	}

	return schema
}

func buildRelation(field *gorm.StructField, syncName string) *SchemaRelation {
	kind := field.Relationship.Kind
	if kind != RelationKindHasOne && kind != RelationKindHasMany {
		return nil
	}

	elemType := field.Struct.Type
	for elemType.Kind() == reflect.Slice || elemType.Kind() == reflect.Ptr {
		elemType = elemType.Elem()
	}

	name := field.DBName
	if syncName != "" {
		name = syncName
	}

	return &SchemaRelation{
		Name:                         name,
		FieldName:                    field.Name,
		Kind:                         kind,
		ElemType:                     elemType,
		ForeignFieldNames:            field.Relationship.ForeignFieldNames,
		ForeignDBNames:               field.Relationship.ForeignDBNames,
		AssociationForeignFieldNames: field.Relationship.AssociationForeignFieldNames,
	}
}

// BillingModels Record types mirrored from the billing provider.
func BillingModels() []interface{} {
	return []interface{}{
		&Account{},
		&BillingInfo{},
		&Subscription{},
		&Transaction{},
	}
}
