package journal

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rustyeddy/autotrader/ledger"
)

// timeLayout is fixed width so that text comparison in SQL orders by time.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrDealSeen is returned by FoldClosed for a deal that is already folded.
var ErrDealSeen = errors.New("deal already folded")

// execer is what *sql.DB and *sql.Tx have in common.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLite holds the trade log, the daily ledger entry and the seen-deal set
// in one database file.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, err
	}
	// one writer; the controller and reconciler share this handle
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) AppendTrade(ctx context.Context, r TradeLogRow) error {
	return insertTrade(ctx, j.db, r)
}

func insertTrade(ctx context.Context, db execer, r TradeLogRow) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO trade_log
		(id, time, instrument, direction, lots, stop_pips, target_pips, realized_pnl,
		 balance, daily_trade_count, deal_id, kind, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Time.UTC().Format(timeLayout), r.Instrument, r.Direction.String(), r.Lots,
		nullable(r.StopPips), nullable(r.TargetPips), r.RealizedPnL,
		nullable(r.Balance), r.DailyTradeCount, r.DealID, string(r.Kind), r.Reason,
	)
	return err
}

func (j *SQLite) LoadLedger(ctx context.Context) (ledger.Entry, bool, error) {
	var e ledger.Entry
	err := j.db.QueryRowContext(ctx,
		`SELECT date, trade_count, cumulative_pnl FROM daily_ledger WHERE id = 1`,
	).Scan(&e.Date, &e.TradeCount, &e.CumulativePnL)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, false, nil
	}
	if err != nil {
		return ledger.Entry{}, false, err
	}
	return e, true, nil
}

func (j *SQLite) SaveLedger(ctx context.Context, e ledger.Entry) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO daily_ledger (id, date, trade_count, cumulative_pnl)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			trade_count = excluded.trade_count,
			cumulative_pnl = excluded.cumulative_pnl`,
		e.Date, e.TradeCount, e.CumulativePnL,
	)
	return err
}

// RollLedger zeroes the entry unless it already holds date.
func (j *SQLite) RollLedger(ctx context.Context, date string) (ledger.Entry, error) {
	var e ledger.Entry
	err := j.db.QueryRowContext(ctx, `
		INSERT INTO daily_ledger (id, date, trade_count, cumulative_pnl)
		VALUES (1, ?, 0, 0)
		ON CONFLICT(id) DO UPDATE SET
			trade_count = CASE WHEN date = excluded.date THEN trade_count ELSE 0 END,
			cumulative_pnl = CASE WHEN date = excluded.date THEN cumulative_pnl ELSE 0 END,
			date = excluded.date
		RETURNING date, trade_count, cumulative_pnl`,
		date,
	).Scan(&e.Date, &e.TradeCount, &e.CumulativePnL)
	return e, err
}

// AddTrade increments the stored entry in one statement, so concurrent
// writers on the same file are all counted.
func (j *SQLite) AddTrade(ctx context.Context, date string, pnlDelta float64) (ledger.Entry, error) {
	return addTrade(ctx, j.db, date, pnlDelta)
}

func addTrade(ctx context.Context, db execer, date string, pnlDelta float64) (ledger.Entry, error) {
	var e ledger.Entry
	err := db.QueryRowContext(ctx, `
		INSERT INTO daily_ledger (id, date, trade_count, cumulative_pnl)
		VALUES (1, ?, 1, ?)
		ON CONFLICT(id) DO UPDATE SET
			trade_count = CASE WHEN date = excluded.date THEN trade_count + 1 ELSE 1 END,
			cumulative_pnl = CASE WHEN date = excluded.date
				THEN cumulative_pnl + excluded.cumulative_pnl
				ELSE excluded.cumulative_pnl END,
			date = excluded.date
		RETURNING date, trade_count, cumulative_pnl`,
		date, pnlDelta,
	).Scan(&e.Date, &e.TradeCount, &e.CumulativePnL)
	return e, err
}

// FoldClosed marks the row's deal seen, adds its realized pnl to the ledger
// entry for date and appends the row, all in one transaction. A deal that
// is already seen writes nothing and returns ErrDealSeen.
func (j *SQLite) FoldClosed(ctx context.Context, date string, r TradeLogRow) (ledger.Entry, error) {
	if r.DealID == "" {
		return ledger.Entry{}, errors.New("journal: closed row without deal id")
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Entry{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO seen_deals (deal_id) VALUES (?)`, r.DealID)
	if err != nil {
		return ledger.Entry{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return ledger.Entry{}, err
	} else if n == 0 {
		return ledger.Entry{}, ErrDealSeen
	}

	e, err := addTrade(ctx, tx, date, r.RealizedPnL)
	if err != nil {
		return ledger.Entry{}, err
	}
	r.DailyTradeCount = e.TradeCount
	if err := insertTrade(ctx, tx, r); err != nil {
		return ledger.Entry{}, err
	}
	if err := tx.Commit(); err != nil {
		return ledger.Entry{}, err
	}
	return e, nil
}

func (j *SQLite) LoadSeen(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT deal_id FROM seen_deals`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SaveSeen records every id in the set. Ids already stored are left alone.
func (j *SQLite) SaveSeen(ctx context.Context, ids []string) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO seen_deals (deal_id) VALUES (?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return Float(v.Float64)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
