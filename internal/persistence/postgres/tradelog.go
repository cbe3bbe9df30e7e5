package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/quantlabs/signalgate/internal/domain"
)

// TradeLog answers closed-trade lookback queries from the relational trade
// log. It is the production implementation of the optimizer's trade-log
// collaborator.
type TradeLog struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTradeLog creates a trade log over an open database handle.
func NewTradeLog(db *sqlx.DB, timeout time.Duration) *TradeLog {
	return &TradeLog{db: db, timeout: timeout}
}

// Connect opens and pings a PostgreSQL trade log.
func Connect(dsn string, timeout time.Duration) (*TradeLog, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect trade log: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return NewTradeLog(db, timeout), nil
}

type closedTradeRow struct {
	Symbol        string    `db:"symbol"`
	PnLPct        float64   `db:"pnl_pct"`
	IsWinner      bool      `db:"is_winner"`
	DurationHours float64   `db:"duration_hours"`
	ClosedAt      time.Time `db:"closed_at"`
}

// ClosedTrades returns closed trades within the lookback window, oldest
// first so drawdown curves come out chronological.
func (l *TradeLog) ClosedTrades(ctx context.Context, lookback time.Duration) ([]domain.ClosedTradeSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	query := `
		SELECT symbol, pnl_pct, is_winner,
		       EXTRACT(EPOCH FROM (closed_at - opened_at)) / 3600.0 AS duration_hours,
		       closed_at
		FROM trades
		WHERE status = 'closed' AND closed_at >= $1
		ORDER BY closed_at ASC`

	var rows []closedTradeRow
	cutoff := time.Now().Add(-lookback)
	if err := l.db.SelectContext(ctx, &rows, query, cutoff); err != nil {
		return nil, fmt.Errorf("failed to query closed trades: %w", err)
	}

	trades := make([]domain.ClosedTradeSummary, 0, len(rows))
	for _, r := range rows {
		trades = append(trades, domain.ClosedTradeSummary{
			Symbol:        r.Symbol,
			PnLPct:        r.PnLPct,
			IsWinner:      r.IsWinner,
			DurationHours: r.DurationHours,
			ClosedAt:      r.ClosedAt,
		})
	}
	return trades, nil
}

// InsertClosed appends one closed trade to the relational log. Failures are
// non-fatal to the caller: the in-memory tracker stays authoritative.
func (l *TradeLog) InsertClosed(ctx context.Context, rec domain.TradeRecord) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	query := `
		INSERT INTO trades
		(trade_id, symbol, side, pattern_type, entry_price, exit_price,
		 pnl_pct, is_winner, status, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'closed', $9, $10)
		ON CONFLICT (trade_id) DO NOTHING`

	_, err := l.db.ExecContext(ctx, query,
		rec.TradeID, rec.Symbol, string(rec.Side), rec.PatternType,
		rec.EntryPrice, rec.ExitPrice, rec.PnLPct, rec.IsWinner,
		rec.EntryTime, rec.ExitTime)
	if err != nil {
		return fmt.Errorf("failed to insert closed trade: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (l *TradeLog) Close() error {
	return l.db.Close()
}
