package journal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rustyeddy/autotrader/ledger"
	"github.com/rustyeddy/autotrader/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 15, 10, 30, 45, 123000000, time.UTC)

func openRow(id string, at time.Time) TradeLogRow {
	return TradeLogRow{
		ID:              id,
		Time:            at,
		Instrument:      "EURUSD",
		Direction:       market.Long,
		Lots:            0.05,
		StopPips:        Float(12),
		TargetPips:      Float(18),
		Balance:         Float(1000),
		DailyTradeCount: 1,
		Kind:            KindOpen,
		Reason:          "trend",
	}
}

func closedRow(id, deal string, at time.Time, pnl float64) TradeLogRow {
	return TradeLogRow{
		ID:              id,
		Time:            at,
		Instrument:      "GBPJPY",
		Direction:       market.Short,
		Lots:            0.02,
		RealizedPnL:     pnl,
		DailyTradeCount: 2,
		DealID:          deal,
		Kind:            KindClosed,
	}
}

func TestCSVJournalAppendsAcrossReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trade_log.csv")

	j, err := NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, j.AppendTrade(ctx, openRow("A", t0)))
	require.NoError(t, j.Close())

	j, err = NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, j.AppendTrade(ctx, closedRow("B", "9001", t0.Add(time.Hour), -3.5)))
	require.NoError(t, j.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "daily_trade_count"), "header written once")

	rows, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, openRow("A", t0), rows[0])
	assert.Equal(t, closedRow("B", "9001", t0.Add(time.Hour), -3.5), rows[1])
	assert.Nil(t, rows[1].Balance)
}

func TestCSVJournalQueries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	j, err := NewCSV(filepath.Join(t.TempDir(), "trade_log.csv"))
	require.NoError(t, err)
	defer j.Close()

	for i := 0; i < 4; i++ {
		require.NoError(t, j.AppendTrade(ctx, openRow(string(rune('a'+i)), t0.Add(time.Duration(i)*12*time.Hour))))
	}

	start, end := DayBounds(t0, time.UTC)
	rows, err := j.ListBetween(ctx, start, end)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	recent, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "d", recent[0].ID)
	assert.Equal(t, "c", recent[1].ID)
}

func newSQLite(t *testing.T) *SQLite {
	t.Helper()
	j, err := NewSQLite(filepath.Join(t.TempDir(), "autotrader.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j := newSQLite(t)

	require.NoError(t, j.AppendTrade(ctx, openRow("01A", t0)))
	require.NoError(t, j.AppendTrade(ctx, closedRow("01B", "555", t0.Add(2*time.Hour), 7.25)))
	require.NoError(t, j.AppendTrade(ctx, openRow("01C", t0.Add(26*time.Hour))))

	start, end := DayBounds(t0, time.UTC)
	rows, err := j.ListBetween(ctx, start, end)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, openRow("01A", t0), rows[0])
	assert.Equal(t, closedRow("01B", "555", t0.Add(2*time.Hour), 7.25), rows[1])

	recent, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "01C", recent[0].ID)

	got, err := j.GetByDeal(ctx, "555")
	require.NoError(t, err)
	assert.Equal(t, "01B", got.ID)

	_, err = j.GetByDeal(ctx, "nope")
	assert.Error(t, err)
}

func TestSQLiteRejectsDuplicateID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j := newSQLite(t)

	require.NoError(t, j.AppendTrade(ctx, openRow("X", t0)))
	assert.Error(t, j.AppendTrade(ctx, openRow("X", t0)))
}

func TestSQLiteLedgerStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j := newSQLite(t)

	_, ok, err := j.LoadLedger(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	l := ledger.New(j, ledger.WithClock(func() time.Time { return t0 }))
	_, err = l.RecordTrade(ctx, -2)
	require.NoError(t, err)
	_, err = l.RecordTrade(ctx, -3)
	require.NoError(t, err)

	e, ok, err := j.LoadLedger(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ledger.Entry{Date: "2024-03-15", TradeCount: 2, CumulativePnL: -5}, e)
}

func TestSQLiteSeenStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j := newSQLite(t)

	require.NoError(t, j.SaveSeen(ctx, []string{"1", "2"}))
	require.NoError(t, j.SaveSeen(ctx, []string{"1", "2", "3"}))

	ids, err := j.LoadSeen(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1", "2", "3"}, ids)
}

func TestSQLiteLedgerAcrossHandles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "autotrader.db")
	a, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	b, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	now := func() time.Time { return t0 }
	oneShot := ledger.New(a, ledger.WithClock(now))
	running := ledger.New(b, ledger.WithClock(now))

	_, err = running.RecordTrade(ctx, 0)
	require.NoError(t, err)
	_, err = oneShot.RecordTrade(ctx, -15)
	require.NoError(t, err)

	breached, err := running.DailyLossBreached(ctx, 100, 0.10)
	require.NoError(t, err)
	assert.True(t, breached)

	e, err := running.RecordTrade(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, ledger.Entry{Date: "2024-03-15", TradeCount: 3, CumulativePnL: -15}, e)
}

func TestSQLiteRollLedger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j := newSQLite(t)

	_, err := j.AddTrade(ctx, "2024-03-15", 4)
	require.NoError(t, err)

	e, err := j.RollLedger(ctx, "2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, ledger.Entry{Date: "2024-03-15", TradeCount: 1, CumulativePnL: 4}, e, "same day is kept")

	e, err = j.RollLedger(ctx, "2024-03-16")
	require.NoError(t, err)
	assert.Equal(t, ledger.Entry{Date: "2024-03-16"}, e)

	e, err = j.AddTrade(ctx, "2024-03-17", -1)
	require.NoError(t, err)
	assert.Equal(t, ledger.Entry{Date: "2024-03-17", TradeCount: 1, CumulativePnL: -1}, e)
}

func TestSQLiteFoldClosedOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j := newSQLite(t)

	e, err := j.FoldClosed(ctx, "2024-03-15", closedRow("01B", "555", t0, 7.25))
	require.NoError(t, err)
	assert.Equal(t, ledger.Entry{Date: "2024-03-15", TradeCount: 1, CumulativePnL: 7.25}, e)

	_, err = j.FoldClosed(ctx, "2024-03-15", closedRow("01C", "555", t0, 7.25))
	assert.ErrorIs(t, err, ErrDealSeen)

	row, err := j.GetByDeal(ctx, "555")
	require.NoError(t, err)
	assert.Equal(t, "01B", row.ID)
	assert.Equal(t, 1, row.DailyTradeCount)

	rows, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	got, _, err := j.LoadLedger(ctx)
	require.NoError(t, err)
	assert.Equal(t, e, got)

	ids, err := j.LoadSeen(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"555"}, ids)
}

func TestSQLiteFoldClosedRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j := newSQLite(t)

	require.NoError(t, j.AppendTrade(ctx, openRow("DUP", t0)))
	_, err := j.FoldClosed(ctx, "2024-03-15", closedRow("DUP", "777", t0, -3))
	require.Error(t, err)

	ids, err := j.LoadSeen(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
	_, ok, err := j.LoadLedger(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "ledger untouched")

	_, err = j.FoldClosed(ctx, "2024-03-15", closedRow("01D", "", t0, 1))
	assert.Error(t, err, "deal id is required")
}

func TestFormatRowOrg(t *testing.T) {
	t.Parallel()

	out := FormatRowOrg(openRow("01HXYZABCDEFGH", t0))
	assert.Contains(t, out, "** OPEN EURUSD long 0.05 (ABCDEFGH)")
	assert.Contains(t, out, ":TIME: 2024-03-15T10:30:45Z")
	assert.Contains(t, out, ":STOP_PIPS: 12.0")
	assert.Contains(t, out, ":TARGET_PIPS: 18.0")
	assert.Contains(t, out, ":BALANCE: 1000.00")
	assert.Contains(t, out, ":REASON: trend")
	assert.Contains(t, out, "*** Review")
	assert.NotContains(t, out, ":DEAL_ID:")

	out = FormatRowOrg(closedRow("c1", "777", t0, -1.5))
	assert.Contains(t, out, ":DEAL_ID: 777")
	assert.Contains(t, out, ":REALIZED_PNL: -1.50")
	assert.NotContains(t, out, ":BALANCE:")
	assert.NotContains(t, out, "*** Review")
}

func TestFormatRowsOrgSummary(t *testing.T) {
	t.Parallel()

	out := FormatRowsOrg("2024-03-15", []TradeLogRow{
		openRow("a", t0),
		closedRow("b", "1", t0, 4),
		closedRow("c", "2", t0, -1.5),
	})
	assert.True(t, strings.HasPrefix(out, "* 2024-03-15\n"))
	assert.Contains(t, out, "rows: 3  closed: 2  realized: 2.50")
}

func TestDayBounds(t *testing.T) {
	t.Parallel()

	ny := time.FixedZone("EST", -5*3600)
	start, end := DayBounds(time.Date(2024, 3, 15, 2, 0, 0, 0, time.UTC), ny)
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, ny), start)
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}
