package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rustyeddy/autotrader/market"
)

const selectRows = `
	SELECT id, time, instrument, direction, lots, stop_pips, target_pips, realized_pnl,
	       balance, daily_trade_count, deal_id, kind, reason
	FROM trade_log`

// ListBetween returns rows whose time is within [start, end), oldest first.
func (j *SQLite) ListBetween(ctx context.Context, start, end time.Time) ([]TradeLogRow, error) {
	rows, err := j.db.QueryContext(ctx, selectRows+`
		WHERE time >= ? AND time < ?
		ORDER BY time ASC, id ASC`, formatTime(start), formatTime(end))
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

// Recent returns the newest n rows, newest first.
func (j *SQLite) Recent(ctx context.Context, n int) ([]TradeLogRow, error) {
	rows, err := j.db.QueryContext(ctx, selectRows+`
		ORDER BY time DESC, id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

// GetByDeal returns the closed row for a venue deal id.
func (j *SQLite) GetByDeal(ctx context.Context, dealID string) (TradeLogRow, error) {
	rows, err := j.db.QueryContext(ctx, selectRows+` WHERE deal_id = ? LIMIT 1`, dealID)
	if err != nil {
		return TradeLogRow{}, err
	}
	out, err := scanRows(rows)
	if err != nil {
		return TradeLogRow{}, err
	}
	if len(out) == 0 {
		return TradeLogRow{}, fmt.Errorf("deal %q not found", dealID)
	}
	return out[0], nil
}

func scanRows(rows *sql.Rows) ([]TradeLogRow, error) {
	defer rows.Close()

	var out []TradeLogRow
	for rows.Next() {
		var (
			r                     TradeLogRow
			ts, dir, kind         string
			stop, target, balance sql.NullFloat64
		)
		if err := rows.Scan(
			&r.ID, &ts, &r.Instrument, &dir, &r.Lots, &stop, &target, &r.RealizedPnL,
			&balance, &r.DailyTradeCount, &r.DealID, &kind, &r.Reason,
		); err != nil {
			return nil, err
		}

		t, err := time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", r.ID, err)
		}
		r.Time = t
		if r.Direction, err = market.ParseDirection(dir); err != nil {
			return nil, fmt.Errorf("row %s: %w", r.ID, err)
		}
		r.Kind = Kind(kind)
		r.StopPips, r.TargetPips, r.Balance = fromNull(stop), fromNull(target), fromNull(balance)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
