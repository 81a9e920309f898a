package denorm

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// State is a flat snapshot of a child row keyed by column name. Values carry
// whatever the source produced: Go field values when built from a model
// struct, driver values when scanned from a snapshot query, or a clause
// expression when the column was assigned via gorm.Expr in the statement
// under inspection.
type State map[string]any

func (s State) clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Bool reads a column as a boolean, tolerating the integer representation
// sqlite scans for boolean columns. Missing or null columns read as false.
func (s State) Bool(column string) bool {
	switch v := s[column].(type) {
	case bool:
		return v
	case *bool:
		return v != nil && *v
	case int64:
		return v != 0
	case int:
		return v != 0
	case sql.NullBool:
		return v.Valid && v.Bool
	default:
		return false
	}
}

// Int64 reads a column as a signed integer, covering the numeric types the
// postgres and sqlite drivers produce. Null reads as zero.
func (s State) Int64(column string) int64 {
	v, _ := toInt64(s[column])
	return v
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	case *int64:
		if n == nil {
			return 0, true
		}
		return *n, true
	case sql.NullInt64:
		return n.Int64, true
	case []byte:
		i, err := strconv.ParseInt(string(n), 10, 64)
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// isExprValue reports whether a state value is an unresolved SQL expression
// (e.g. assigned via gorm.Expr) instead of a concrete number.
func isExprValue(v any) bool {
	switch v.(type) {
	case clause.Expr, *clause.Expr:
		return true
	}
	_, ok := v.(clause.Expression)
	return ok
}

// keyOf normalizes a relation column value into a comparable parent key.
// The bool result is false when the value is null-like (no parent).
func keyOf(v any) (string, bool) {
	switch k := v.(type) {
	case nil:
		return "", false
	case uuid.UUID:
		if k == uuid.Nil {
			return "", false
		}
		return k.String(), true
	case *uuid.UUID:
		if k == nil || *k == uuid.Nil {
			return "", false
		}
		return k.String(), true
	case string:
		if k == "" {
			return "", false
		}
		return k, true
	case []byte:
		if len(k) == 0 {
			return "", false
		}
		return string(k), true
	case int64:
		if k == 0 {
			return "", false
		}
		return strconv.FormatInt(k, 10), true
	case int:
		if k == 0 {
			return "", false
		}
		return strconv.Itoa(k), true
	case *int64:
		if k == nil {
			return "", false
		}
		return keyOf(*k)
	case fmt.Stringer:
		str := k.String()
		if str == "" {
			return "", false
		}
		return str, true
	default:
		return fmt.Sprint(k), true
	}
}

// isNullValue reports whether a soft-delete column value marks the row live.
func isNullValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case gorm.DeletedAt:
		return !t.Valid
	case *gorm.DeletedAt:
		return t == nil || !t.Valid
	case sql.NullTime:
		return !t.Valid
	case *time.Time:
		return t == nil || t.IsZero()
	case time.Time:
		return t.IsZero()
	default:
		return false
	}
}
