package redis

import (
	"errors"
	"fmt"

	"github.com/gomodule/redigo/redis"

	C "billsync/config"
)

type Key struct {
	// Provider and AccountCode scope the key.
	Provider    string
	AccountCode string
	// Prefix - Helps better grouping and searching
	// i.e billing_sync:last_synced_at
	Prefix string
	// Suffix - optional
	Suffix string
}

var (
	ErrorInvalidAccount = errors.New("invalid key account")
	ErrorInvalidPrefix  = errors.New("invalid key prefix")
	ErrorInvalidKey     = errors.New("invalid redis cache key")
	ErrorCacheDisabled  = errors.New("cache not initialized")
)

func NewKey(provider, accountCode, prefix, suffix string) (*Key, error) {
	if accountCode == "" {
		return nil, ErrorInvalidAccount
	}

	if prefix == "" {
		return nil, ErrorInvalidPrefix
	}

	return &Key{Provider: provider, AccountCode: accountCode, Prefix: prefix, Suffix: suffix}, nil
}

func (key *Key) Key() (string, error) {
	if key.AccountCode == "" {
		return "", ErrorInvalidAccount
	}

	if key.Prefix == "" {
		return "", ErrorInvalidPrefix
	}

	accountScope := fmt.Sprintf("acc:%s", key.AccountCode)
	if key.Provider != "" {
		accountScope = fmt.Sprintf("pr:%s:%s", key.Provider, accountScope)
	}

	// key: i.e, billing_sync:last_synced_at:pr:stripe:acc:cus_123:
	return fmt.Sprintf("%s:%s:%s", key.Prefix, accountScope, key.Suffix), nil
}

// do Runs a single key command on a pooled connection.
func do(key *Key, command string, args ...interface{}) (interface{}, error) {
	if key == nil {
		return nil, ErrorInvalidKey
	}

	cKey, err := key.Key()
	if err != nil {
		return nil, err
	}

	if !C.IsCacheEnabled() {
		return nil, ErrorCacheDisabled
	}
	redisConn := C.GetCacheRedisConnection()
	defer redisConn.Close()

	return redisConn.Do(command, append([]interface{}{cKey}, args...)...)
}

// Set Stores the value with an expiry. Zero expiry keeps the key until deleted.
func Set(key *Key, value string, expiryInSecs float64) error {
	if value == "" {
		return errors.New("empty cache key value")
	}

	var err error
	if expiryInSecs > 0 {
		_, err = do(key, "SET", value, "EX", int64(expiryInSecs))
	} else {
		_, err = do(key, "SET", value)
	}
	return err
}

// Get Returns redis.ErrNil as error when the key does not exist.
func Get(key *Key) (string, error) {
	return redis.String(do(key, "GET"))
}

func Del(key *Key) error {
	_, err := do(key, "DEL")
	return err
}
