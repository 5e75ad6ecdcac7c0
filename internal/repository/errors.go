package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"tessera/internal/apperrors"
	"tessera/internal/database"
)

// translateDBError maps driver-level failures onto the typed taxonomy:
// unique violations become conflicts, foreign-key violations become invalid
// references, connection trouble becomes transient.
func translateDBError(err error, entity string) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return apperrors.Wrap(apperrors.KindConflict, apperrors.CodeDuplicate,
				fmt.Sprintf("%s already exists", entity), err)
		case "23503":
			return apperrors.Wrap(apperrors.KindValidation, apperrors.CodeInvalidReference,
				fmt.Sprintf("%s references a missing row", entity), err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || database.IsRetryable(err) {
		return apperrors.Wrap(apperrors.KindTransient, "DB_UNAVAILABLE",
			fmt.Sprintf("transient database error on %s", entity), err)
	}

	return err
}
