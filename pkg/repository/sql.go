package repository

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-pkgz/repeater/v2"

	"github.com/aitides/aitides/pkg/domain"
)

// bodySQL is the JSON-serialized digest body stored in the payload column
type bodySQL struct {
	Papers   []domain.RefinedItem `json:"papers"`
	News     []domain.RefinedItem `json:"news"`
	Warnings []domain.Warning     `json:"warnings,omitempty"`
}

// Value implements driver.Valuer for database storage
func (b bodySQL) Value() (driver.Value, error) {
	return json.Marshal(b)
}

// Scan implements sql.Scanner for database retrieval
func (b *bodySQL) Scan(value interface{}) error {
	if value == nil {
		*b = bodySQL{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		*b = bodySQL{}
		return nil
	}
	return json.Unmarshal(data, b)
}

// titlesSQL is a JSON array of title strings for SQL operations
type titlesSQL []string

// Value implements driver.Valuer for database storage
func (t titlesSQL) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	return json.Marshal(t)
}

// Scan implements sql.Scanner for database retrieval
func (t *titlesSQL) Scan(value interface{}) error {
	if value == nil {
		*t = titlesSQL{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return json.Unmarshal([]byte("[]"), t)
	}
	return json.Unmarshal(data, t)
}

// withRetry runs a write with backoff on SQLite lock contention. Non-lock
// errors are wrapped as critical so the retrier stops immediately.
func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	return retrier.Do(ctx, func() error {
		err := fn()
		if err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: err}
		}
		return nil
	})
}

// criticalError wraps an error to signal repeater to stop retrying
type criticalError struct {
	err error
}

func (e *criticalError) Error() string {
	return e.err.Error()
}

// isLockError checks if an error is a SQLite lock/busy error
func isLockError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "SQLITE_BUSY") ||
		strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked")
}
