package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rustyeddy/autotrader/journal"
	"github.com/rustyeddy/autotrader/ledger"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the trade log",
	Long: `Print trade log rows as org-mode entries.

Subcommands:
  today   - rows written today (storage.timezone)
  day     - rows written on a given day
  recent  - the last N rows
  deal    - the closed row for a venue deal id (sqlite only)

Examples:
  autotrader journal today
  autotrader journal day 2024-01-15
  autotrader journal recent 20`,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List rows written today",
	Args:  cobra.NoArgs,
	RunE:  runJournalToday,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List rows written on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalRecentCmd = &cobra.Command{
	Use:   "recent [n]",
	Short: "List the most recent rows",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJournalRecent,
}

var journalDealCmd = &cobra.Command{
	Use:   "deal <deal-id>",
	Short: "Show the closed row for a venue deal",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDeal,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)
	journalCmd.AddCommand(journalRecentCmd)
	journalCmd.AddCommand(journalDealCmd)
}

func runJournalToday(cmd *cobra.Command, args []string) error {
	return runJournalDayOf(cmd, "")
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	return runJournalDayOf(cmd, args[0])
}

func runJournalDayOf(cmd *cobra.Command, day string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	loc := cfg.Location()
	t := time.Now().In(loc)
	if day != "" {
		if t, err = time.ParseInLocation(ledger.DateLayout, day, loc); err != nil {
			return fmt.Errorf("date: %w", err)
		}
	}
	start, end := journal.DayBounds(t, loc)

	rows, err := st.query.ListBetween(cmd.Context(), start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatRowsOrg("Trades "+start.Format(ledger.DateLayout), rows))
	return nil
}

func runJournalRecent(cmd *cobra.Command, args []string) error {
	n := 20
	if len(args) == 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			return fmt.Errorf("recent: %q is not a positive count", args[0])
		}
		n = v
	}

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	rows, err := st.query.Recent(cmd.Context(), n)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatRowsOrg(fmt.Sprintf("Last %d trades", n), rows))
	return nil
}

func runJournalDeal(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if st.db == nil {
		return fmt.Errorf("journal deal needs storage.backend sqlite")
	}
	row, err := st.db.GetByDeal(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get deal: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatRowOrg(row))
	return nil
}
