package journal

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rustyeddy/autotrader/market"
)

var csvHeader = []string{
	"id", "time", "instrument", "direction", "lots", "stop_pips", "target_pips",
	"realized_pnl", "balance", "daily_trade_count", "deal_id", "kind", "reason",
}

// CSVJournal appends rows to a single CSV file. The header is written when
// the file is new or empty; an existing log is never truncated.
type CSVJournal struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *csv.Writer
}

func NewCSV(path string) (*CSVJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	w := csv.NewWriter(f)
	if st.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			f.Close()
			return nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &CSVJournal{path: path, f: f, w: w}, nil
}

func (j *CSVJournal) AppendTrade(_ context.Context, r TradeLogRow) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.w.Write(encodeRow(r)); err != nil {
		return err
	}
	j.w.Flush()
	return j.w.Error()
}

func (j *CSVJournal) ListBetween(_ context.Context, start, end time.Time) ([]TradeLogRow, error) {
	rows, err := j.readAll()
	if err != nil {
		return nil, err
	}
	var out []TradeLogRow
	for _, r := range rows {
		if !r.Time.Before(start) && r.Time.Before(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (j *CSVJournal) Recent(_ context.Context, n int) ([]TradeLogRow, error) {
	rows, err := j.readAll()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(a, b int) bool { return rows[a].Time.After(rows[b].Time) })
	if n >= 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows, nil
}

func (j *CSVJournal) readAll() ([]TradeLogRow, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return ReadCSV(j.path)
}

func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.w.Flush()
	if err := j.w.Error(); err != nil {
		j.f.Close()
		return err
	}
	return j.f.Close()
}

// ReadCSV parses a trade log written by CSVJournal.
func ReadCSV(path string) ([]TradeLogRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(csvHeader)

	var out []TradeLogRow
	for line := 1; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if line == 1 && rec[0] == csvHeader[0] {
			continue
		}
		row, err := decodeRow(rec)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		out = append(out, row)
	}
}

func encodeRow(r TradeLogRow) []string {
	return []string{
		r.ID,
		r.Time.UTC().Format(time.RFC3339Nano),
		r.Instrument,
		r.Direction.String(),
		f(r.Lots),
		optf(r.StopPips),
		optf(r.TargetPips),
		f(r.RealizedPnL),
		optf(r.Balance),
		strconv.Itoa(r.DailyTradeCount),
		r.DealID,
		string(r.Kind),
		r.Reason,
	}
}

func decodeRow(rec []string) (TradeLogRow, error) {
	var (
		r   TradeLogRow
		err error
	)
	r.ID = rec[0]
	if r.Time, err = time.Parse(time.RFC3339Nano, rec[1]); err != nil {
		return r, err
	}
	r.Instrument = rec[2]
	if r.Direction, err = market.ParseDirection(rec[3]); err != nil {
		return r, err
	}
	if r.Lots, err = strconv.ParseFloat(rec[4], 64); err != nil {
		return r, err
	}
	if r.StopPips, err = parseOpt(rec[5]); err != nil {
		return r, err
	}
	if r.TargetPips, err = parseOpt(rec[6]); err != nil {
		return r, err
	}
	if r.RealizedPnL, err = strconv.ParseFloat(rec[7], 64); err != nil {
		return r, err
	}
	if r.Balance, err = parseOpt(rec[8]); err != nil {
		return r, err
	}
	if r.DailyTradeCount, err = strconv.Atoi(rec[9]); err != nil {
		return r, err
	}
	r.DealID = rec[10]
	r.Kind = Kind(rec[11])
	r.Reason = rec[12]
	return r, nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}

func optf(x *float64) string {
	if x == nil {
		return ""
	}
	return f(*x)
}

func parseOpt(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
