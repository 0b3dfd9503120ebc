// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package dbinterface holds the narrow database surface the stores depend
// on, keeping them independent of the concrete pool type.
package dbinterface

import (
	"context"
	"database/sql"
)

// Querier executes queries. *sql.DB, *sql.Tx and *database.DB all satisfy
// it, so a store method runs the same inside or outside a transaction.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// TxBeginner is a Querier that can also open transactions. The attempt
// store's conditional insert needs one.
type TxBeginner interface {
	Querier
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
