package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/broker/oanda"
	"github.com/rustyeddy/autotrader/config"
	"github.com/rustyeddy/autotrader/controller"
	"github.com/rustyeddy/autotrader/journal"
	"github.com/rustyeddy/autotrader/ledger"
	"github.com/rustyeddy/autotrader/news"
	"github.com/rustyeddy/autotrader/notify"
	"github.com/rustyeddy/autotrader/reconcile"
)

// storage is the persisted state of one account: the trade log, the daily
// ledger and the seen-deal set, either in one sqlite file or in three plain
// files.
type storage struct {
	journal journal.Journal
	query   journal.Querier
	ledger  ledger.Store
	seen    reconcile.SeenStore
	db      *journal.SQLite // nil for the files backend
}

func openStorage(cfg *config.Config) (*storage, error) {
	s := cfg.Storage
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage dir: %w", err)
	}

	switch s.Backend {
	case "files":
		j, err := journal.NewCSV(s.Path(s.TradeLog, "trade_log.csv"))
		if err != nil {
			return nil, fmt.Errorf("open trade log: %w", err)
		}
		return &storage{
			journal: j,
			query:   j,
			ledger:  ledger.NewFileStore(s.Path(s.LedgerFile, "daily_stats.json")),
			seen:    reconcile.NewFileSeenStore(s.Path(s.SeenFile, "seen_deals.json")),
		}, nil
	default:
		db, err := journal.NewSQLite(s.Path(s.DBPath, "autotrader.sqlite"))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return &storage{journal: db, query: db, ledger: db, seen: db, db: db}, nil
	}
}

func (s *storage) Close() error {
	return s.journal.Close()
}

func openVenue(cfg *config.Config, logger *slog.Logger) (broker.Broker, error) {
	v := cfg.Venue
	inner, err := oanda.New(oanda.Config{
		Environment: v.Environment,
		AllowLive:   v.AllowLive,
		AccountID:   v.AccountID,
		Token:       v.Token,
	}, &http.Client{}, logger)
	if err != nil {
		return nil, err
	}

	guard := broker.GuardDefaults()
	guard.CallTimeout = v.CallTimeout.D()
	guard.Retries = v.Retries
	guard.SubmitsPerSec = v.SubmitsPerSec
	return broker.NewGuarded(inner, guard, logger), nil
}

// newNotifier sends to Telegram when a bot token is configured and to the
// log otherwise.
func newNotifier(cfg *config.Config, logger *slog.Logger) (*notify.Notifier, error) {
	n := cfg.Notify
	var senders []notify.Sender
	switch {
	case n.TelegramToken != "":
		tg, err := notify.NewTelegramSender(n.TelegramToken, n.TelegramChatID, "")
		if err != nil {
			return nil, err
		}
		senders = append(senders, tg)
	default:
		senders = append(senders, notify.LogSender{Logger: logger})
	}
	return notify.NewNotifier(senders, n.Events, logger), nil
}

func newsGuard(cfg *config.Config) (news.Guard, error) {
	if cfg.News.CalendarFile == "" {
		return news.NoBlackout{}, nil
	}
	cal, err := news.LoadCalendar(cfg.News.CalendarFile, cfg.News.Window.D())
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("news calendar %s does not exist", cfg.News.CalendarFile)
	}
	return cal, err
}

// logUpcoming lists the calendar's high-impact events over the next day so
// the operator knows when instruments will sit out.
func logUpcoming(ctx context.Context, guard news.Guard, now time.Time, logger *slog.Logger) {
	cal, ok := guard.(*news.Calendar)
	if !ok {
		return
	}
	for _, e := range cal.Upcoming(now, 24*time.Hour) {
		logger.InfoContext(ctx, "news blackout ahead",
			slog.String("event", e.Title),
			slog.String("currency", e.Currency),
			slog.Time("at", e.Time),
			slog.Duration("window", cal.Window),
		)
	}
}

func newLedger(cfg *config.Config, store ledger.Store, logger *slog.Logger) *ledger.Ledger {
	return ledger.New(store,
		ledger.WithLocation(cfg.Location()),
		ledger.WithLogger(logger),
	)
}

// newReconciler folds each deal in one sqlite transaction when the storage
// is a database.
func newReconciler(st *storage, deals reconcile.DealSource, led *ledger.Ledger, alerts notify.Alerter, logger *slog.Logger) *reconcile.Reconciler {
	opts := []reconcile.Option{
		reconcile.WithAlerter(alerts),
		reconcile.WithLogger(logger),
	}
	if st.db != nil {
		opts = append(opts, reconcile.WithFolder(st.db, led.Today))
	}
	return reconcile.New(deals, st.journal, led, st.seen, opts...)
}

func controllerConfig(cfg *config.Config) controller.Config {
	t := cfg.Trading
	return controller.Config{
		Instruments:      t.Instruments,
		Locks:            t.Locks,
		ScanInterval:     t.ScanInterval.D(),
		LossCooldown:     t.LossCooldown.D(),
		LayerDelay:       t.LayerDelay.D(),
		InstrumentDelay:  t.InstrumentDelay.D(),
		OrderTimeout:     cfg.Venue.CallTimeout.D(),
		MaxSpreadPips:    t.MaxSpreadPips,
		MaxOpenTrades:    t.MaxOpenTrades,
		MaxLayers:        t.MaxLayers,
		Deviation:        t.Deviation,
		PriceWindow:      t.PriceWindow,
		StopFloorPips:    t.StopFloorPips,
		ATRMultiplier:    t.ATRMultiplier,
		RewardRisk:       t.RewardRisk,
		AccountCurrency:  cfg.Account.Currency,
		MinLot:           cfg.Risk.MinLot,
		MaxLot:           cfg.Risk.MaxLot,
		MaxDailyLossPct:  cfg.Risk.MaxDailyLossPct,
		LossWarningRatio: cfg.Risk.LossWarningRatio,
	}
}
