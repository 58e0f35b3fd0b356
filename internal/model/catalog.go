package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type TestKind string

const (
	TestKindNumeric     TestKind = "numeric"
	TestKindQualitative TestKind = "qualitative"
)

func (k TestKind) Valid() bool {
	return k == TestKindNumeric || k == TestKindQualitative
}

// TestCatalogEntry describes one orderable test. Entries are
// copy-on-write: an edit inserts a new row at version+1 and retires
// the old one, so results keep pointing at the version they were
// scored against.
type TestCatalogEntry struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	Code          string         `db:"code" json:"code"`
	Name          string         `db:"name" json:"name"`
	Category      string         `db:"category" json:"category,omitempty"`
	Unit          string         `db:"unit" json:"unit"`
	Kind          TestKind       `db:"kind" json:"kind"`
	CriticalLow   *float64       `db:"critical_low" json:"critical_low,omitempty"`
	CriticalHigh  *float64       `db:"critical_high" json:"critical_high,omitempty"`
	AllowedValues pq.StringArray `db:"allowed_values" json:"allowed_values,omitempty"`
	Version       int            `db:"version" json:"version"`
	Active        bool           `db:"active" json:"active"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// IsCriticalValue scores a raw result value against the entry's
// reference range. Numeric entries flag values strictly below the low
// bound or strictly above the high one; qualitative entries flag
// anything outside the allowed set (matched case-insensitively after
// trimming). The computation depends only on the value and this entry,
// never on the submitter.
func (e *TestCatalogEntry) IsCriticalValue(value string) (bool, error) {
	switch e.Kind {
	case TestKindNumeric:
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return false, fmt.Errorf("test %s expects a numeric value, got %q", e.Code, value)
		}
		if e.CriticalLow != nil && v < *e.CriticalLow {
			return true, nil
		}
		if e.CriticalHigh != nil && v > *e.CriticalHigh {
			return true, nil
		}
		return false, nil
	case TestKindQualitative:
		normalized := strings.ToLower(strings.TrimSpace(value))
		for _, allowed := range e.AllowedValues {
			if strings.ToLower(strings.TrimSpace(allowed)) == normalized {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("test %s has unknown kind %q", e.Code, e.Kind)
	}
}

type UpsertTestRequest struct {
	Name          string   `json:"name" binding:"required"`
	Category      string   `json:"category"`
	Unit          string   `json:"unit"`
	Kind          string   `json:"kind" binding:"required,oneof=numeric qualitative"`
	CriticalLow   *float64 `json:"critical_low"`
	CriticalHigh  *float64 `json:"critical_high"`
	AllowedValues []string `json:"allowed_values"`
}
