package util

import (
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MinuteInSecs = 60
	HourInSecs   = 60 * MinuteInSecs
	DayInSecs    = 24 * HourInSecs
)

var randomSource = rand.New(rand.NewSource(time.Now().UnixNano()))

const lowerAlphaNum = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomLowerAphaNumString Not safe for concurrent use. Used for test fixtures.
func RandomLowerAphaNumString(n int) string {
	var builder strings.Builder
	builder.Grow(n)
	for i := 0; i < n; i++ {
		builder.WriteByte(lowerAlphaNum[randomSource.Intn(len(lowerAlphaNum))])
	}
	return builder.String()
}

// GetUUID Random (v4) uuid.
func GetUUID() string {
	return uuid.New().String()
}

// GetValueAsString Returns the string form of scalar values.
func GetValueAsString(value interface{}) (string, error) {
	switch valueType := value.(type) {
	case nil:
		return "", nil
	case string:
		return valueType, nil
	case fmt.Stringer:
		return valueType.String(), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		return fmt.Sprintf("%v", valueType), nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.String {
		return rv.String(), nil
	}
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return "", nil
		}
		return GetValueAsString(rv.Elem().Interface())
	}
	return "", fmt.Errorf("value of type %T is not a scalar", value)
}

// IsEmptyValue Returns true for nil, nil pointers and zero values.
func IsEmptyValue(value interface{}) bool {
	if value == nil {
		return true
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return true
		}
		return IsEmptyValue(rv.Elem().Interface())
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() == 0
	}
	return rv.IsZero()
}

func StringValueIn(value string, list []string) bool {
	for i := range list {
		if list[i] == value {
			return true
		}
	}
	return false
}

// GetStringListFromCSV Splits comma separated values, trims and drops empty ones.
func GetStringListFromCSV(csv string) []string {
	list := make([]string, 0)
	for _, value := range strings.Split(csv, ",") {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		list = append(list, value)
	}
	return list
}

func TimeNowUTC() time.Time {
	return time.Now().UTC()
}

// UnixToTime Converts unix seconds to UTC time. Zero stays zero.
func UnixToTime(timestamp int64) time.Time {
	if timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(timestamp, 0).UTC()
}
