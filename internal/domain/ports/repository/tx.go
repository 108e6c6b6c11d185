package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one database transaction and passes the
// transaction handle to it. Repositories that receive a non-nil Tx take
// exclusive row locks on the rows they read for update; those locks are
// released on commit or rollback. Returning an error from fn rolls
// everything back.
//
// The concrete type of Tx is infra-defined (pgx.Tx for Postgres, *memory.Tx
// for the in-process store). Repositories MUST accept NoTX for the
// non-transactional path.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
