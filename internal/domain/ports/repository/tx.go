package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an infra-defined transaction handle (pgx.Tx for Postgres).
// Repositories MUST accept NoTX (nil) and fall back to the pool.
type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one storage transaction: fn's error rolls
// back, nil commits. The engine never calls a provider while inside fn.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
