package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

type ConflictReason string

const (
	ConflictDuplicateCpf      ConflictReason = "duplicate-cpf"
	ConflictDuplicateCnh      ConflictReason = "duplicate-cnh"
	ConflictBatchDuplicateCpf ConflictReason = "batch-duplicate-cpf"
	ConflictBatchDuplicateCnh ConflictReason = "batch-duplicate-cnh"
)

func (r ConflictReason) IsValid() bool {
	switch r {
	case ConflictDuplicateCpf, ConflictDuplicateCnh, ConflictBatchDuplicateCpf, ConflictBatchDuplicateCnh:
		return true
	}
	return false
}

// ConflictReasons is a set of conflict tags kept in the order they were added.
// It is stored as a comma-joined string; an empty set is stored as NULL.
type ConflictReasons []ConflictReason

func (rs *ConflictReasons) Add(r ConflictReason) {
	if rs.Has(r) {
		return
	}
	*rs = append(*rs, r)
}

func (rs ConflictReasons) Has(r ConflictReason) bool {
	for _, v := range rs {
		if v == r {
			return true
		}
	}
	return false
}

func (rs ConflictReasons) Empty() bool {
	return len(rs) == 0
}

func (rs ConflictReasons) String() string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

// ParseConflictReasons reads the stored form. Unknown tags are dropped.
func ParseConflictReasons(s string) ConflictReasons {
	var rs ConflictReasons
	for _, part := range strings.Split(s, ",") {
		r := ConflictReason(strings.TrimSpace(part))
		if r.IsValid() {
			rs.Add(r)
		}
	}
	return rs
}

func (rs ConflictReasons) Value() (driver.Value, error) {
	if len(rs) == 0 {
		return nil, nil
	}
	return rs.String(), nil
}

func (rs *ConflictReasons) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*rs = nil
	case string:
		*rs = ParseConflictReasons(v)
	case []byte:
		*rs = ParseConflictReasons(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ConflictReasons", src)
	}
	return nil
}
