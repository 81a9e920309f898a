package dberr

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	types "github.com/yungbote/rollup-backend/internal/domain"
)

// MapError maps storage failures into domain error codes so callers never
// branch on driver types.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var domErr *types.Error
	if errors.As(err, &domErr) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return types.WrapError(types.CodeNotFound, op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return types.WrapError(types.CodeRetryable, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505":
			return types.WrapError(types.CodeConflict, op, err) // unique_violation
		case "23503":
			return types.WrapError(types.CodePreconditionFailed, op, err) // foreign_key_violation
		case "40001", "40P01", "55P03":
			return types.WrapError(types.CodeRetryable, op, err) // serialization/deadlock/lock_not_available
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "already exists"), strings.Contains(msg, "unique constraint"):
		return types.WrapError(types.CodeConflict, op, err)
	case strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "serialization"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "temporar"):
		return types.WrapError(types.CodeRetryable, op, err)
	default:
		return types.WrapError(types.CodeInternal, op, err)
	}
}
