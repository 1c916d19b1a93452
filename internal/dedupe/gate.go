// Package dedupe decides whether a matched paragraph is worth an alert.
//
// A key is alerted the first time it is seen and again once its stored
// record is older than the validation window. In between, repeats are
// suppressed. Any storage failure also suppresses: a missed alert is
// preferred over a crash or a double alert.
package dedupe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/DeafMist/boletin-radar/internal/models"
)

// DefaultValidationWindow is how long a key stays suppressed after an alert.
const DefaultValidationWindow = 6 * 24 * time.Hour

// ErrConflict is returned by a Store when a conditional write loses to a
// concurrent writer.
var ErrConflict = errors.New("dedupe: record changed concurrently")

// Store persists records keyed by normalized matched text. Create and
// Replace must be conditional so that two writers racing on one key cannot
// both succeed.
type Store interface {
	Get(ctx context.Context, key string) (models.Record, bool, error)
	// Create fails with ErrConflict when the key already exists.
	Create(ctx context.Context, rec models.Record) error
	// Replace fails with ErrConflict when prev.Revision is no longer current.
	Replace(ctx context.Context, prev, next models.Record) error
}

// Outcome is the gate decision for one key.
type Outcome int

const (
	Suppressed Outcome = iota
	AcceptedNew
	AcceptedStale
)

// Accepted reports whether an alert should be sent.
func (o Outcome) Accepted() bool {
	return o == AcceptedNew || o == AcceptedStale
}

func (o Outcome) String() string {
	switch o {
	case AcceptedNew:
		return "accepted_new"
	case AcceptedStale:
		return "accepted_stale"
	default:
		return "suppressed"
	}
}

// Gate applies the validation window on top of a Store.
type Gate struct {
	store  Store
	window time.Duration
	log    *slog.Logger
}

// NewGate wraps store. A non-positive window falls back to
// DefaultValidationWindow.
func NewGate(store Store, window time.Duration, log *slog.Logger) *Gate {
	if window <= 0 {
		window = DefaultValidationWindow
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gate{store: store, window: window, log: log}
}

// CheckAndRecord looks key up, records it when it is new or stale and
// reports whether the caller should alert.
func (g *Gate) CheckAndRecord(ctx context.Context, key, message string, now time.Time) Outcome {
	now = now.UTC().Truncate(time.Second)
	next := models.Record{Key: key, Timestamp: now, Message: message}

	existing, found, err := g.store.Get(ctx, key)
	if err != nil {
		g.log.Error("record lookup failed, suppressing alert", slog.Any("err", err))
		return Suppressed
	}

	if !found {
		if err := g.store.Create(ctx, next); err != nil {
			return g.writeFailed("create", err)
		}
		g.log.Debug("stored new record")
		return AcceptedNew
	}

	age := now.Sub(existing.Timestamp)
	if age < g.window {
		g.log.Debug("record is recent, suppressing alert", slog.Duration("age", age))
		return Suppressed
	}

	if err := g.store.Replace(ctx, existing, next); err != nil {
		return g.writeFailed("replace", err)
	}
	g.log.Debug("refreshed stale record", slog.Duration("age", age))
	return AcceptedStale
}

func (g *Gate) writeFailed(op string, err error) Outcome {
	if errors.Is(err, ErrConflict) {
		g.log.Warn("record written concurrently, suppressing alert", slog.String("op", op))
		return Suppressed
	}
	g.log.Error("record write failed, suppressing alert", slog.String("op", op), slog.Any("err", err))
	return Suppressed
}
