package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"crypto-paper-trader/internal/analytics"
	"crypto-paper-trader/internal/portfolio"
)

// RunRecord is the archived summary of one simulation run.
type RunRecord struct {
	ID          int64             `json:"id"`
	Label       string            `json:"label"`
	StartDate   time.Time         `json:"start_date"`
	EndDate     time.Time         `json:"end_date"`
	InitialCash float64           `json:"initial_cash"`
	FinalNAV    float64           `json:"final_nav"`
	Metrics     analytics.Metrics `json:"metrics"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Repository archives simulation runs and their trades in Postgres.
type Repository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewRepository connects a pool and verifies the connection.
func NewRepository(ctx context.Context, dsn string, logger zerolog.Logger) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Repository{
		pool:   pool,
		logger: logger.With().Str("component", "repository").Logger(),
	}, nil
}

func (r *Repository) Close() {
	r.pool.Close()
}

// InitSchema creates the archive tables if they do not exist.
func (r *Repository) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS sim_runs (
			id BIGSERIAL PRIMARY KEY,
			label TEXT NOT NULL,
			start_date TIMESTAMPTZ NOT NULL,
			end_date TIMESTAMPTZ NOT NULL,
			initial_cash DOUBLE PRECISION NOT NULL,
			final_nav DOUBLE PRECISION NOT NULL,
			total_return DOUBLE PRECISION,
			annualized_return DOUBLE PRECISION,
			sharpe DOUBLE PRECISION,
			max_drawdown DOUBLE PRECISION,
			win_rate DOUBLE PRECISION,
			trades INT NOT NULL DEFAULT 0,
			total_fees DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS sim_trades (
			id BIGSERIAL PRIMARY KEY,
			run_id BIGINT NOT NULL REFERENCES sim_runs(id) ON DELETE CASCADE,
			trade_id UUID NOT NULL,
			executed_at TIMESTAMPTZ NOT NULL,
			symbol TEXT NOT NULL,
			action TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity DOUBLE PRECISION NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			notional DOUBLE PRECISION NOT NULL,
			margin DOUBLE PRECISION NOT NULL,
			fee DOUBLE PRECISION NOT NULL,
			realized_pnl DOUBLE PRECISION NOT NULL,
			reason TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_sim_trades_run ON sim_trades(run_id);
	`
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// SaveRun archives a run summary with its trades in one transaction and
// returns the new run ID. NaN metric values are stored as NULL.
func (r *Repository) SaveRun(ctx context.Context, run RunRecord, trades []portfolio.Trade) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO sim_runs (
			label, start_date, end_date, initial_cash, final_nav,
			total_return, annualized_return, sharpe, max_drawdown, win_rate,
			trades, total_fees
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	var runID int64
	err = tx.QueryRow(ctx, query,
		run.Label, run.StartDate, run.EndDate, run.InitialCash, run.FinalNAV,
		nullNaN(run.Metrics.TotalReturn), nullNaN(run.Metrics.AnnualizedReturn),
		nullNaN(run.Metrics.Sharpe), nullNaN(run.Metrics.MaxDrawdown), nullNaN(run.Metrics.WinRate),
		run.Metrics.Trades, run.Metrics.TotalFees,
	).Scan(&runID)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	tradeQuery := `
		INSERT INTO sim_trades (
			run_id, trade_id, executed_at, symbol, action, side,
			quantity, price, notional, margin, fee, realized_pnl, reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	for _, t := range trades {
		_, err = tx.Exec(ctx, tradeQuery,
			runID, t.ID, t.Time, t.Symbol, string(t.Action), string(t.Side),
			t.Quantity, t.Price, t.Notional, t.Margin, t.Fee, t.RealizedPnL, t.Reason,
		)
		if err != nil {
			return 0, fmt.Errorf("insert trade: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.Info().Int64("run_id", runID).Int("trades", len(trades)).Msg("run archived")
	return runID, nil
}

// ListRuns returns the most recent archived runs, newest first.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, label, start_date, end_date, initial_cash, final_nav,
			   COALESCE(total_return, 'NaN'::float8),
			   COALESCE(annualized_return, 'NaN'::float8),
			   COALESCE(sharpe, 'NaN'::float8),
			   COALESCE(max_drawdown, 'NaN'::float8),
			   COALESCE(win_rate, 'NaN'::float8),
			   trades, total_fees, created_at
		FROM sim_runs
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var rec RunRecord
		err := rows.Scan(
			&rec.ID, &rec.Label, &rec.StartDate, &rec.EndDate, &rec.InitialCash, &rec.FinalNAV,
			&rec.Metrics.TotalReturn, &rec.Metrics.AnnualizedReturn, &rec.Metrics.Sharpe,
			&rec.Metrics.MaxDrawdown, &rec.Metrics.WinRate,
			&rec.Metrics.Trades, &rec.Metrics.TotalFees, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// nullNaN maps NaN to SQL NULL since JSON-style NaN sentinels have no
// numeric representation in Postgres inserts via parameters.
func nullNaN(v float64) interface{} {
	if v != v {
		return nil
	}
	return v
}
