package resource

import (
	"reflect"
	"strings"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

type structOptions struct {
	renames map[string]string
	skips   map[string]bool
	sets    map[string]interface{}
}

type StructOption func(*structOptions)

// Rename Exposes the attribute or relation tagged `from` as `to`.
func Rename(from, to string) StructOption {
	return func(o *structOptions) {
		o.renames[from] = to
	}
}

// Skip Makes the named attributes or relations absent.
func Skip(names ...string) StructOption {
	return func(o *structOptions) {
		for _, name := range names {
			o.skips[name] = true
		}
	}
}

// With Sets an attribute after renames are applied.
func With(name string, value interface{}) StructOption {
	return func(o *structOptions) {
		o.sets[name] = value
	}
}

// FromStruct Builds a resource from a struct, or pointer to struct, of a
// provider SDK. Attributes are named after the json tags of exported fields.
// Nil pointers, maps, slices and interfaces are absent. Nested structs are
// exposed as related resources, lists of structs as related lists.
// Returns nil for a nil value.
func FromStruct(v interface{}, nodename string, opts ...StructOption) *Map {
	value := reflect.ValueOf(v)
	for value.IsValid() && (value.Kind() == reflect.Ptr || value.Kind() == reflect.Interface) {
		if value.IsNil() {
			return nil
		}
		value = value.Elem()
	}
	if !value.IsValid() || value.Kind() != reflect.Struct {
		return nil
	}

	options := &structOptions{
		renames: make(map[string]string),
		skips:   make(map[string]bool),
		sets:    make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(options)
	}

	m := &Map{
		nodename:     nodename,
		values:       make(map[string]interface{}),
		related:      make(map[string]Resource),
		relatedLists: make(map[string][]Resource),
	}
	m.readStruct(value)

	for name := range options.skips {
		m.Delete(name)
	}
	if len(options.renames) > 0 {
		source := m.clone()
		for from := range options.renames {
			m.Delete(from)
		}
		for from, to := range options.renames {
			m.copyFrom(source, from, to)
		}
	}
	for name, setValue := range options.sets {
		m.Set(name, setValue)
	}

	return m
}

func (m *Map) clone() *Map {
	c := &Map{
		nodename:     m.nodename,
		values:       make(map[string]interface{}, len(m.values)),
		related:      make(map[string]Resource, len(m.related)),
		relatedLists: make(map[string][]Resource, len(m.relatedLists)),
	}
	for name, value := range m.values {
		c.values[name] = value
	}
	for name, related := range m.related {
		c.related[name] = related
	}
	for name, list := range m.relatedLists {
		c.relatedLists[name] = list
	}
	return c
}

func (m *Map) copyFrom(source *Map, from, to string) {
	if value, exists := source.values[from]; exists {
		m.values[to] = value
	}
	if related, exists := source.related[from]; exists {
		m.related[to] = related
	}
	if list, exists := source.relatedLists[from]; exists {
		m.relatedLists[to] = list
	}
}

func (m *Map) readStruct(value reflect.Value) {
	valueType := value.Type()
	for i := 0; i < valueType.NumField(); i++ {
		fieldType := valueType.Field(i)
		if fieldType.Anonymous || fieldType.PkgPath != "" {
			continue
		}

		name := getJSONName(fieldType)
		if name == "" {
			continue
		}

		m.readField(name, value.Field(i))
	}
}

func getJSONName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" || tag == "-" {
		return ""
	}
	return strings.Split(tag, ",")[0]
}

func (m *Map) readField(name string, field reflect.Value) {
	for field.Kind() == reflect.Ptr || field.Kind() == reflect.Interface {
		if field.IsNil() {
			return
		}
		field = field.Elem()
	}

	switch field.Kind() {
	case reflect.Struct:
		if field.Type() == timeType {
			m.values[name] = field.Interface()
			return
		}
		if related := FromStruct(field.Interface(), name); related != nil {
			m.related[name] = related
		}

	case reflect.Slice:
		if field.IsNil() {
			return
		}
		if isStructType(field.Type().Elem()) {
			list := make([]Resource, 0, field.Len())
			for j := 0; j < field.Len(); j++ {
				if elem := FromStruct(field.Index(j).Interface(), name); elem != nil {
					list = append(list, elem)
				}
			}
			m.relatedLists[name] = list
			return
		}
		m.values[name] = field.Interface()

	case reflect.Map:
		if field.IsNil() {
			return
		}
		m.values[name] = field.Interface()

	default:
		m.values[name] = field.Interface()
	}
}

func isStructType(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && t != timeType
}
