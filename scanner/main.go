package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/boletin-radar/internal/bulletin"
	"github.com/DeafMist/boletin-radar/internal/config"
	"github.com/DeafMist/boletin-radar/internal/dedupe"
	"github.com/DeafMist/boletin-radar/internal/logger"
	"github.com/DeafMist/boletin-radar/internal/metrics"
	"github.com/DeafMist/boletin-radar/internal/notify"
	"github.com/DeafMist/boletin-radar/internal/pipeline"
	"github.com/DeafMist/boletin-radar/internal/scanner"
	"github.com/DeafMist/boletin-radar/internal/storage"
)

func main() {
	log := logger.New("scanner")
	if err := config.LoadDotEnv(); err != nil {
		log.Error("load .env", slog.Any("err", err))
		os.Exit(1)
	}
	cfg, err := config.LoadScanner()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("init scanner", slog.Any("err", err))
		stop()
		os.Exit(1)
	}
	defer a.Close()

	log.Info("scanner started",
		slog.String("store", a.backend.Name),
		slog.Int("targets", len(cfg.Targets)),
		slog.Bool("dead_letter", a.dlq != nil),
		slog.String("schedule", cfg.Schedule),
	)

	if cfg.Schedule == "" {
		a.runOnce(ctx)
		return
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger), cron.Recover(cron.DefaultLogger)))
	if _, err := c.AddFunc(cfg.Schedule, func() { a.runOnce(ctx) }); err != nil {
		log.Error("schedule scan", slog.Any("err", err))
		return
	}

	// Run immediately on start, then on schedule.
	a.runOnce(ctx)
	c.Start()

	<-ctx.Done()
	log.Info("shutdown signal received")
	<-c.Stop().Done()
}

type app struct {
	cfg     *config.Scanner
	log     *slog.Logger
	runner  *pipeline.Runner
	metrics *metrics.Metrics
	backend *storage.Backend
	dlq     *kafka.Writer
}

func newApp(ctx context.Context, cfg *config.Scanner, log *slog.Logger) (*app, error) {
	tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, notify.WithAPIURL(cfg.TelegramAPIURL))
	if err != nil {
		return nil, err
	}

	backend, err := storage.Open(ctx, cfg.Store, log)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, backend: backend, metrics: metrics.New()}

	var notifier notify.Notifier = tg
	if len(cfg.KafkaBrokers) > 0 {
		a.dlq = notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaDLQTopic)
		notifier = notify.NewDeadLetter(tg, a.dlq, log)
	}

	fetcher := bulletin.NewFetcher(cfg.SearchURL,
		bulletin.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		bulletin.WithUserAgent(cfg.UserAgent),
		bulletin.WithRateLimit(cfg.FetchRateLimit),
	)
	gate := dedupe.NewGate(backend.Store, cfg.ValidationWindow, log.With(slog.String("component", "gate")))

	a.runner = pipeline.NewRunner(fetcher, scanner.New(cfg.PublicURL), gate, notifier,
		pipeline.WithLocation(cfg.Location),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithLogger(log),
	)
	return a, nil
}

func (a *app) runOnce(ctx context.Context) pipeline.Summary {
	sum := a.runner.Run(ctx, a.cfg.Targets)

	if a.cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.metrics.Push(pushCtx, a.cfg.PushgatewayURL); err != nil {
			a.log.Warn("metrics push failed", slog.Any("err", err))
		}
	}
	return sum
}

func (a *app) Close() {
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.log.Warn("close dead letter writer", slog.Any("err", err))
		}
	}
	if err := a.backend.Close(); err != nil {
		a.log.Warn("close record store", slog.Any("err", err))
	}
}
