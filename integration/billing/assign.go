package billing

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"billsync/model/model"
	U "billsync/util"
)

var (
	timeType       = reflect.TypeOf(time.Time{})
	jsonNumberType = reflect.TypeOf(json.Number(""))
)

// normalizeChoice Lowercases non-empty string values of choice fields.
// Typed string enums of provider SDKs become plain strings.
func normalizeChoice(value interface{}) interface{} {
	rv := reflect.ValueOf(value)
	for rv.IsValid() && (rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return value
		}
		rv = rv.Elem()
	}

	if !rv.IsValid() || rv.Kind() != reflect.String || rv.String() == "" {
		return value
	}
	return strings.ToLower(rv.String())
}

// assignField Sets the field of record with the value coerced to the field's type.
func assignField(record interface{}, field *model.SchemaField, value interface{}) error {
	fieldValue := reflect.ValueOf(record).Elem().FieldByName(field.FieldName)
	if !fieldValue.IsValid() || !fieldValue.CanSet() {
		return errors.Errorf("field %s not settable", field.FieldName)
	}

	coerced, err := coerceValue(value, fieldValue.Type())
	if err != nil {
		return errors.Wrapf(err, "invalid value for %s", field.Name)
	}

	fieldValue.Set(coerced)
	return nil
}

// getFieldValue Returns the current value of a field on record.
func getFieldValue(record interface{}, fieldName string) (interface{}, bool) {
	fieldValue := reflect.ValueOf(record).Elem().FieldByName(fieldName)
	if !fieldValue.IsValid() {
		return nil, false
	}
	return fieldValue.Interface(), true
}

// coerceValue Converts remote values to the Go type of a local field.
// nil becomes the zero value. Pointers are followed or created as needed.
func coerceValue(value interface{}, target reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(target), nil
	}

	source := reflect.ValueOf(value)
	for source.Kind() == reflect.Ptr || source.Kind() == reflect.Interface {
		if source.IsNil() {
			return reflect.Zero(target), nil
		}
		source = source.Elem()
	}

	if target.Kind() == reflect.Ptr {
		inner, err := coerceValue(source.Interface(), target.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		// Unset remote timestamps are stored as NULL.
		if target.Elem() == timeType && inner.Interface().(time.Time).IsZero() {
			return reflect.Zero(target), nil
		}

		pointer := reflect.New(target.Elem())
		pointer.Elem().Set(inner)
		return pointer, nil
	}

	if target == timeType {
		t, err := toTime(source)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(t), nil
	}

	if source.Type().AssignableTo(target) {
		return source, nil
	}

	switch target.Kind() {
	case reflect.String:
		return coerceString(source, target)
	case reflect.Bool:
		return coerceBool(source, target)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return coerceInt(source, target)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return coerceUint(source, target)
	case reflect.Float32, reflect.Float64:
		return coerceFloat(source, target)
	}

	if source.Kind() == target.Kind() && source.Type().ConvertibleTo(target) {
		return source.Convert(target), nil
	}

	return reflect.Value{}, fmt.Errorf("cannot convert %s to %s", source.Type(), target)
}

func coerceString(source reflect.Value, target reflect.Type) (reflect.Value, error) {
	switch source.Kind() {
	case reflect.String:
		return reflect.ValueOf(source.String()).Convert(target), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Bool:
		stringValue, err := U.GetValueAsString(source.Interface())
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(stringValue).Convert(target), nil
	case reflect.Slice:
		if source.Type().Elem().Kind() == reflect.String {
			list := make([]string, 0, source.Len())
			for i := 0; i < source.Len(); i++ {
				list = append(list, source.Index(i).String())
			}
			return reflect.ValueOf(strings.Join(list, ",")).Convert(target), nil
		}
	}

	return reflect.Value{}, fmt.Errorf("cannot convert %s to string", source.Type())
}

func coerceBool(source reflect.Value, target reflect.Type) (reflect.Value, error) {
	switch source.Kind() {
	case reflect.Bool:
		return source.Convert(target), nil
	case reflect.String:
		if source.String() == "" {
			return reflect.Zero(target), nil
		}
		boolValue, err := strconv.ParseBool(source.String())
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(boolValue).Convert(target), nil
	}

	return reflect.Value{}, fmt.Errorf("cannot convert %s to bool", source.Type())
}

func toInt64(source reflect.Value) (int64, error) {
	switch source.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return source.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if source.Uint() > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", source.Uint())
		}
		return int64(source.Uint()), nil
	case reflect.Float32, reflect.Float64:
		floatValue := source.Float()
		if floatValue != math.Trunc(floatValue) {
			return 0, fmt.Errorf("value %v is not integral", floatValue)
		}
		// MaxInt64 is not representable as float64, it rounds up to 2^63.
		if floatValue < math.MinInt64 || floatValue >= math.MaxInt64 {
			return 0, fmt.Errorf("value %v overflows int64", floatValue)
		}
		return int64(floatValue), nil
	case reflect.String:
		stringValue := source.String()
		if stringValue == "" {
			return 0, nil
		}
		if source.Type() == jsonNumberType {
			return json.Number(stringValue).Int64()
		}
		return strconv.ParseInt(stringValue, 10, 64)
	}

	return 0, fmt.Errorf("cannot convert %s to integer", source.Type())
}

func coerceInt(source reflect.Value, target reflect.Type) (reflect.Value, error) {
	intValue, err := toInt64(source)
	if err != nil {
		return reflect.Value{}, err
	}

	result := reflect.New(target).Elem()
	if result.OverflowInt(intValue) {
		return reflect.Value{}, fmt.Errorf("value %d overflows %s", intValue, target)
	}
	result.SetInt(intValue)
	return result, nil
}

func coerceUint(source reflect.Value, target reflect.Type) (reflect.Value, error) {
	intValue, err := toInt64(source)
	if err != nil {
		return reflect.Value{}, err
	}
	if intValue < 0 {
		return reflect.Value{}, fmt.Errorf("negative value %d for %s", intValue, target)
	}

	result := reflect.New(target).Elem()
	if result.OverflowUint(uint64(intValue)) {
		return reflect.Value{}, fmt.Errorf("value %d overflows %s", intValue, target)
	}
	result.SetUint(uint64(intValue))
	return result, nil
}

func coerceFloat(source reflect.Value, target reflect.Type) (reflect.Value, error) {
	var floatValue float64
	switch source.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		floatValue = float64(source.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		floatValue = float64(source.Uint())
	case reflect.Float32, reflect.Float64:
		floatValue = source.Float()
	case reflect.String:
		if source.String() == "" {
			return reflect.Zero(target), nil
		}
		parsed, err := strconv.ParseFloat(source.String(), 64)
		if err != nil {
			return reflect.Value{}, err
		}
		floatValue = parsed
	default:
		return reflect.Value{}, fmt.Errorf("cannot convert %s to float", source.Type())
	}

	result := reflect.New(target).Elem()
	result.SetFloat(floatValue)
	return result, nil
}

// toTime Accepts times, unix seconds and RFC3339 strings.
func toTime(source reflect.Value) (time.Time, error) {
	if source.Type() == timeType {
		return source.Interface().(time.Time), nil
	}

	switch source.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		timestamp, err := toInt64(source)
		if err != nil {
			return time.Time{}, err
		}
		return U.UnixToTime(timestamp), nil

	case reflect.String:
		stringValue := source.String()
		if stringValue == "" {
			return time.Time{}, nil
		}
		if source.Type() == jsonNumberType {
			timestamp, err := json.Number(stringValue).Int64()
			if err != nil {
				return time.Time{}, err
			}
			return U.UnixToTime(timestamp), nil
		}
		parsed, err := time.Parse(time.RFC3339, stringValue)
		if err != nil {
			return time.Time{}, err
		}
		return parsed.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("cannot convert %s to time", source.Type())
}
