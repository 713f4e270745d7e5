package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatRowOrg renders a row as an Org-mode block. Facts go into a
// PROPERTIES drawer so they stay searchable; open rows get a Review
// placeholder for notes.
func FormatRowOrg(r TradeLogRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** %s %s %s %.2f (%s)\n", strings.ToUpper(string(r.Kind)), r.Instrument, r.Direction, r.Lots, shortID(r.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", r.ID)
	fmt.Fprintf(&b, ":TIME: %s\n", r.Time.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":INSTRUMENT: %s\n", r.Instrument)
	fmt.Fprintf(&b, ":DIRECTION: %s\n", r.Direction)
	fmt.Fprintf(&b, ":LOTS: %.2f\n", r.Lots)
	if r.StopPips != nil {
		fmt.Fprintf(&b, ":STOP_PIPS: %.1f\n", *r.StopPips)
	}
	if r.TargetPips != nil {
		fmt.Fprintf(&b, ":TARGET_PIPS: %.1f\n", *r.TargetPips)
	}
	fmt.Fprintf(&b, ":REALIZED_PNL: %.2f\n", r.RealizedPnL)
	if r.Balance != nil {
		fmt.Fprintf(&b, ":BALANCE: %.2f\n", *r.Balance)
	}
	fmt.Fprintf(&b, ":DAILY_TRADES: %d\n", r.DailyTradeCount)
	if r.DealID != "" {
		fmt.Fprintf(&b, ":DEAL_ID: %s\n", r.DealID)
	}
	if r.Reason != "" {
		fmt.Fprintf(&b, ":REASON: %s\n", r.Reason)
	}
	b.WriteString(":END:\n")
	if r.Kind == KindOpen {
		b.WriteString("\n*** Review\n- \n")
	}
	return b.String()
}

// FormatRowsOrg renders rows separated by blank lines, with a summary line
// of closed pnl on top.
func FormatRowsOrg(title string, rows []TradeLogRow) string {
	var (
		b      strings.Builder
		pnl    float64
		closed int
	)
	for _, r := range rows {
		if r.Kind == KindClosed {
			pnl += r.RealizedPnL
			closed++
		}
	}
	fmt.Fprintf(&b, "* %s\n", title)
	fmt.Fprintf(&b, "rows: %d  closed: %d  realized: %.2f\n", len(rows), closed, pnl)
	for _, r := range rows {
		b.WriteString("\n")
		b.WriteString(FormatRowOrg(r))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}
