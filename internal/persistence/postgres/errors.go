package postgres

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/omegaprime/omegaledger/internal/ledger"
	"github.com/omegaprime/omegaledger/internal/persistence"
)

// Postgres error codes the repositories translate into sentinel errors.
const (
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
	codeCheckViolation      = "23514"
)

// translateError maps driver errors onto the persistence sentinels so
// callers can errors.Is instead of matching pq internals.
func translateError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: %w", op, persistence.ErrInvalidReference)
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w", op, persistence.ErrDuplicate)
		case codeCheckViolation:
			return fmt.Errorf("%s: %s: %w", op, pqErr.Constraint, ledger.ErrInvalidValue)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
