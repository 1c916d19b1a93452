// Package pipeline drives one scan run over the configured search targets.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/boletin-radar/internal/bulletin"
	"github.com/DeafMist/boletin-radar/internal/dedupe"
	"github.com/DeafMist/boletin-radar/internal/metrics"
	"github.com/DeafMist/boletin-radar/internal/models"
	"github.com/DeafMist/boletin-radar/internal/notify"
	"github.com/DeafMist/boletin-radar/internal/scanner"
)

// Fetcher retrieves the results table for a search payload.
type Fetcher interface {
	Fetch(ctx context.Context, payload string) (*models.Document, error)
}

// Gate decides whether a match should be alerted.
type Gate interface {
	CheckAndRecord(ctx context.Context, key, message string, now time.Time) dedupe.Outcome
}

// Summary counts what a run did.
type Summary struct {
	RunID        string
	Targets      int
	Fetched      int
	NoTable      int
	Failed       int
	Matches      int
	Accepted     int
	Suppressed   int
	NotifyFailed int
}

// Runner wires the pipeline stages together. Every collaborator is passed
// in so tests can swap them.
type Runner struct {
	fetcher  Fetcher
	scanner  *scanner.Scanner
	gate     Gate
	notifier notify.Notifier
	metrics  *metrics.Metrics
	location *time.Location
	now      func() time.Time
	log      *slog.Logger
}

// Option customizes a Runner.
type Option func(*Runner)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLocation sets the timezone used to compute query date windows.
func WithLocation(loc *time.Location) Option {
	return func(r *Runner) {
		if loc != nil {
			r.location = loc
		}
	}
}

// WithMetrics records run counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRunner builds a Runner.
func NewRunner(f Fetcher, s *scanner.Scanner, g Gate, n notify.Notifier, opts ...Option) *Runner {
	r := &Runner{
		fetcher:  f,
		scanner:  s,
		gate:     g,
		notifier: n,
		metrics:  metrics.New(),
		location: time.UTC,
		now:      time.Now,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes targets in order. A failing target is logged and skipped;
// only context cancellation ends the run early.
func (r *Runner) Run(ctx context.Context, targets []models.SearchTarget) Summary {
	started := time.Now()
	sum := Summary{RunID: uuid.NewString()}
	log := r.log.With(slog.String("run_id", sum.RunID))
	log.Info("scan started", slog.Int("targets", len(targets)))

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			log.Warn("scan interrupted", slog.Any("err", err))
			break
		}
		r.processTarget(ctx, log, target, &sum)
	}

	r.metrics.ObserveRun(time.Since(started))
	log.Info("scan finished",
		slog.Int("targets", sum.Targets),
		slog.Int("fetched", sum.Fetched),
		slog.Int("no_table", sum.NoTable),
		slog.Int("failed", sum.Failed),
		slog.Int("matches", sum.Matches),
		slog.Int("accepted", sum.Accepted),
		slog.Int("suppressed", sum.Suppressed),
		slog.Int("notify_failed", sum.NotifyFailed),
		slog.Duration("took", time.Since(started)),
	)
	return sum
}

func (r *Runner) processTarget(ctx context.Context, log *slog.Logger, target models.SearchTarget, sum *Summary) {
	sum.Targets++
	r.metrics.Targets.Inc()
	log = log.With(slog.String("name", target.Name), slog.Int("district", target.District))

	q := bulletin.BuildQuery(target.District, r.now().In(r.location))

	doc, err := r.fetcher.Fetch(ctx, q.Payload)
	switch {
	case errors.Is(err, bulletin.ErrNoTable):
		sum.NoTable++
		r.metrics.FetchFailures.WithLabelValues("no_table").Inc()
		log.Info("no results table for district")
		return
	case err != nil:
		sum.Failed++
		r.metrics.FetchFailures.WithLabelValues("transport").Inc()
		log.Warn("bulletin fetch failed, skipping target", slog.Any("err", err))
		return
	}
	sum.Fetched++

	for match := range r.scanner.Scan(doc, target.Name, q.Payload) {
		sum.Matches++
		r.metrics.Matches.Inc()

		outcome := r.gate.CheckAndRecord(ctx, match.NormalizedText, match.Message, r.now())
		r.metrics.GateDecisions.WithLabelValues(outcome.String()).Inc()
		if !outcome.Accepted() {
			sum.Suppressed++
			continue
		}
		sum.Accepted++
		log.Info("match accepted", slog.String("outcome", outcome.String()), slog.String("text", match.RawText))

		if err := r.notifier.Notify(ctx, match.Message); err != nil {
			sum.NotifyFailed++
			r.metrics.NotifyFailures.Inc()
			log.Error("alert delivery failed", slog.Any("err", err))
		}
	}
}
