// Package store persists portfolio state between paper-trading cycles and
// archives run results. Three backends are provided: a JSON file for local
// runs, Redis for shared deployments, and Postgres for durable backtest
// archives. File and Redis implement the same Store interface.
package store

import (
	"context"
	"errors"

	"crypto-paper-trader/internal/portfolio"
)

// ErrNotFound is returned when no saved state exists yet. Callers start a
// fresh portfolio in that case.
var ErrNotFound = errors.New("store: state not found")

// Store loads and saves portfolio state for the cycle executor.
type Store interface {
	LoadPortfolio(ctx context.Context) (*portfolio.Portfolio, error)
	SavePortfolio(ctx context.Context, pf *portfolio.Portfolio) error
}
