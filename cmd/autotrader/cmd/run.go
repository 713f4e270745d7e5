package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/controller"
	"github.com/rustyeddy/autotrader/strategies"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading loop and the reconciler",
	Long: `Connect to the venue and run the scan loop and the closed-deal
reconciler until interrupted. An order already in flight when the signal
arrives is allowed to finish.

Example:
  autotrader run -c autotrader.yaml`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	venue, err := openVenue(cfg, logger)
	if err != nil {
		return err
	}
	if err := venue.Connect(ctx); err != nil {
		return fmt.Errorf("connect venue: %w", err)
	}
	defer disconnect(venue, logger)

	alerts, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}
	guard, err := newsGuard(cfg)
	if err != nil {
		return err
	}

	led := newLedger(cfg, st.ledger, logger)
	rec := newReconciler(st, venue, led, alerts, logger)
	if err := rec.Load(ctx); err != nil {
		return err
	}

	ctl := controller.New(controllerConfig(cfg), venue, led, st.journal,
		controller.WithSignals(strategies.NewIndicatorSource(cfg.Signals.IndicatorConfig), cfg.Signals.Rules),
		controller.WithSelector(cfg.Risk.Selector),
		controller.WithNews(guard),
		controller.WithAlerter(alerts),
		controller.WithLogger(logger),
	)

	logger.InfoContext(ctx, "autotrader starting",
		slog.String("environment", cfg.Venue.Environment),
		slog.String("storage", cfg.Storage.Backend),
		slog.Any("instruments", cfg.Trading.Instruments),
	)
	logUpcoming(ctx, guard, time.Now(), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctl.Run(gctx)
	})
	g.Go(func() error {
		return rec.Run(gctx, cfg.Reconcile.Interval.D(), cfg.Reconcile.Lookback.D())
	})
	err = g.Wait()

	logger.Info("autotrader stopped")
	return err
}

func disconnect(venue broker.Broker, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := venue.Disconnect(ctx); err != nil {
		logger.Warn("disconnect failed", slog.String("error", err.Error()))
	}
}
