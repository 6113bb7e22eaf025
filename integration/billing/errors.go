package billing

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNilResource      = errors.New("nil remote resource")
	ErrEmptyAccountCode = errors.New("empty account code")
	ErrAccountNotFound  = errors.New("account not found on billing provider")
)

// ConfigurationError Raised when a remote resource cannot be matched to a
// local record because it has no value for the unique lookup field.
type ConfigurationError struct {
	RecordType  string
	UniqueField string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("remote %s record has no value for unique field %s", e.RecordType, e.UniqueField)
}

func IsConfigurationError(err error) bool {
	var configurationError *ConfigurationError
	return errors.As(err, &configurationError)
}

// StoreError A store operation returned an unexpected status.
type StoreError struct {
	Operation  string
	RecordType string
	ErrCode    int
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("failed to %s %s record, status %d", e.Operation, e.RecordType, e.ErrCode)
}

func newStoreError(operation, recordType string, errCode int) error {
	return &StoreError{Operation: operation, RecordType: recordType, ErrCode: errCode}
}
