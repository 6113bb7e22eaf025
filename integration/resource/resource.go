// Package resource exposes remote billing objects through one attribute
// protocol, whatever their origin: SDK structs, decoded JSON or plain maps.
//
// An attribute absent from a resource is different from an attribute present
// with a nil value: absent attributes never override local data.
package resource

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sort"

	"github.com/pkg/errors"
)

type Resource interface {
	// Nodename Name of the remote object kind, i.e account, billing_info.
	Nodename() string
	// Attributes Names of the scalar attributes present on the resource.
	Attributes() []string
	Attribute(name string) (interface{}, bool)
	// Related Nested resource exposed under the given name.
	Related(name string) (Resource, bool)
	// RelatedList Nested list of resources exposed under the given name.
	RelatedList(name string) ([]Resource, bool)
}

// Snapshot Returns the attributes present on the resource.
func Snapshot(res Resource) map[string]interface{} {
	snapshot := make(map[string]interface{})
	if IsNil(res) {
		return snapshot
	}

	for _, name := range res.Attributes() {
		if value, exists := res.Attribute(name); exists {
			snapshot[name] = value
		}
	}
	return snapshot
}

// IsNil Returns true for nil interfaces and typed nil resources.
func IsNil(res Resource) bool {
	if res == nil {
		return true
	}

	value := reflect.ValueOf(res)
	return value.Kind() == reflect.Ptr && value.IsNil()
}

// Map Resource backed by maps. Used as the common representation of
// every resource built by this package.
type Map struct {
	nodename     string
	values       map[string]interface{}
	related      map[string]Resource
	relatedLists map[string][]Resource
}

// NewMap Builds a resource from decoded values. Nested maps become related
// resources and lists of maps become related lists. A key with nil value is
// a present attribute.
func NewMap(nodename string, values map[string]interface{}) *Map {
	m := &Map{
		nodename:     nodename,
		values:       make(map[string]interface{}),
		related:      make(map[string]Resource),
		relatedLists: make(map[string][]Resource),
	}

	for name, value := range values {
		switch typedValue := value.(type) {
		case map[string]interface{}:
			m.related[name] = NewMap(name, typedValue)
		case []map[string]interface{}:
			list := make([]Resource, 0, len(typedValue))
			for _, elem := range typedValue {
				list = append(list, NewMap(name, elem))
			}
			m.relatedLists[name] = list
		case []interface{}:
			if list, ok := asResourceList(name, typedValue); ok {
				m.relatedLists[name] = list
				continue
			}
			m.values[name] = value
		default:
			m.values[name] = value
		}
	}

	return m
}

func asResourceList(name string, values []interface{}) ([]Resource, bool) {
	if len(values) == 0 {
		return nil, false
	}

	list := make([]Resource, 0, len(values))
	for _, value := range values {
		elem, ok := value.(map[string]interface{})
		if !ok {
			return nil, false
		}
		list = append(list, NewMap(name, elem))
	}
	return list, true
}

// FromJSON Decodes a JSON object into a resource. Numbers are kept as json.Number.
func FromJSON(nodename string, raw []byte) (*Map, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var values map[string]interface{}
	if err := decoder.Decode(&values); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s resource", nodename)
	}
	if values == nil {
		return nil, errors.Errorf("empty %s resource", nodename)
	}

	return NewMap(nodename, values), nil
}

func (m *Map) Nodename() string {
	return m.nodename
}

func (m *Map) Attributes() []string {
	names := make([]string, 0, len(m.values))
	for name := range m.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Map) Attribute(name string) (interface{}, bool) {
	value, exists := m.values[name]
	return value, exists
}

func (m *Map) Related(name string) (Resource, bool) {
	related, exists := m.related[name]
	return related, exists
}

func (m *Map) RelatedList(name string) ([]Resource, bool) {
	list, exists := m.relatedLists[name]
	return list, exists
}

// Set Adds or overrides an attribute.
func (m *Map) Set(name string, value interface{}) *Map {
	m.values[name] = value
	return m
}

// Delete Makes the attribute or relation absent.
func (m *Map) Delete(names ...string) *Map {
	for _, name := range names {
		delete(m.values, name)
		delete(m.related, name)
		delete(m.relatedLists, name)
	}
	return m
}

// Rename Moves an attribute or relation to another name. The target is
// overwritten only when the source exists.
func (m *Map) Rename(from, to string) *Map {
	if from == to {
		return m
	}

	if value, exists := m.values[from]; exists {
		delete(m.values, from)
		m.values[to] = value
	}
	if related, exists := m.related[from]; exists {
		delete(m.related, from)
		m.related[to] = related
	}
	if list, exists := m.relatedLists[from]; exists {
		delete(m.relatedLists, from)
		m.relatedLists[to] = list
	}
	return m
}

// Attach Exposes child under name. A nil child leaves the relation absent.
func (m *Map) Attach(name string, child Resource) *Map {
	if IsNil(child) {
		delete(m.related, name)
		return m
	}

	m.related[name] = child
	return m
}

// AttachList Exposes children under name, even when empty. Nil
// children are dropped.
func (m *Map) AttachList(name string, children []Resource) *Map {
	list := make([]Resource, 0, len(children))
	for _, child := range children {
		if IsNil(child) {
			continue
		}
		list = append(list, child)
	}

	m.relatedLists[name] = list
	return m
}
