package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/boletin-radar/internal/bulletin"
	"github.com/DeafMist/boletin-radar/internal/dedupe"
	"github.com/DeafMist/boletin-radar/internal/metrics"
	"github.com/DeafMist/boletin-radar/internal/models"
	"github.com/DeafMist/boletin-radar/internal/notify"
	"github.com/DeafMist/boletin-radar/internal/pipeline"
	"github.com/DeafMist/boletin-radar/internal/scanner"
)

// stubFetcher answers by district, taken from the payload suffix.
type stubFetcher struct {
	docs     map[string]*models.Document
	errs     map[string]error
	payloads []string
}

func (s *stubFetcher) Fetch(_ context.Context, payload string) (*models.Document, error) {
	s.payloads = append(s.payloads, payload)
	district := payload[strings.LastIndex(payload, "=")+1:]
	if err, ok := s.errs[district]; ok {
		return nil, err
	}
	return s.docs[district], nil
}

type recordingNotifier struct {
	sent []string
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, message string) error {
	n.sent = append(n.sent, message)
	return n.err
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (models.Record, bool, error) {
	return models.Record{}, false, errors.New("table unavailable")
}
func (brokenStore) Create(context.Context, models.Record) error { return errors.New("unreachable") }
func (brokenStore) Replace(context.Context, models.Record, models.Record) error {
	return errors.New("unreachable")
}

func docWith(paragraphs ...string) *models.Document {
	cell := models.Cell{Text: strings.Join(paragraphs, " ")}
	for _, p := range paragraphs {
		cell.Paragraphs = append(cell.Paragraphs, models.Paragraph{Text: p})
	}
	return &models.Document{Rows: []models.Row{{Cells: []models.Cell{cell}}}}
}

var fixedNow = time.Date(2024, 6, 15, 18, 0, 0, 0, time.UTC)

func newRunner(f pipeline.Fetcher, store dedupe.Store, n notify.Notifier, m *metrics.Metrics, now *time.Time) *pipeline.Runner {
	return pipeline.NewRunner(f, scanner.New(""), dedupe.NewGate(store, 0, nil), n,
		pipeline.WithClock(func() time.Time { return *now }),
		pipeline.WithMetrics(m),
	)
}

func TestRunAlertsOnceThenSuppresses(t *testing.T) {
	f := &stubFetcher{docs: map[string]*models.Document{
		"9": docWith("Exp. 12/2024 JUAN AMADOR MOJICA vs. Banco", "Exp. 13/2024 OTRA"),
	}}
	n := &recordingNotifier{}
	now := fixedNow
	r := newRunner(f, dedupe.NewMemoryStore(100), n, metrics.New(), &now)
	targets := []models.SearchTarget{{Name: "Juan Amador Mojica", District: 9}}

	sum := r.Run(context.Background(), targets)
	require.Equal(t, 1, sum.Matches)
	require.Equal(t, 1, sum.Accepted)
	require.NotEmpty(t, sum.RunID)
	require.Equal(t, []string{
		"Exp. 12/2024 JUAN AMADOR MOJICA vs. Banco 'http://sica.tsjmorelos2.gob.mx/boletin/boletinjudicial.php' " +
			"opcion=area&start=2024-05-20&end=2024-06-15&dato=&distritos=9",
	}, n.sent)

	now = fixedNow.Add(24 * time.Hour)
	sum = r.Run(context.Background(), targets)
	require.Equal(t, 1, sum.Suppressed)
	require.Len(t, n.sent, 1)

	now = fixedNow.AddDate(0, 0, 7)
	sum = r.Run(context.Background(), targets)
	require.Equal(t, 1, sum.Accepted)
	require.Len(t, n.sent, 2)
}

func TestRunSkipsNoTableAndTransportErrors(t *testing.T) {
	f := &stubFetcher{
		docs: map[string]*models.Document{"9": docWith("JUAN AMADOR MOJICA")},
		errs: map[string]error{
			"1": bulletin.ErrNoTable,
			"2": &bulletin.TransportError{URL: "http://bulletin", StatusCode: 502},
		},
	}
	n := &recordingNotifier{}
	m := metrics.New()
	now := fixedNow
	r := newRunner(f, dedupe.NewMemoryStore(100), n, m, &now)

	sum := r.Run(context.Background(), []models.SearchTarget{
		{Name: "Juan Amador Mojica", District: 1},
		{Name: "Juan Amador Mojica", District: 2},
		{Name: "Juan Amador Mojica", District: 9},
	})

	require.Len(t, f.payloads, 3)
	require.Equal(t, 3, sum.Targets)
	require.Equal(t, 1, sum.NoTable)
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, 1, sum.Fetched)
	require.Equal(t, 1, sum.Accepted)
	require.Len(t, n.sent, 1)
	require.Equal(t, 1.0, testutil.ToFloat64(m.FetchFailures.WithLabelValues("no_table")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.FetchFailures.WithLabelValues("transport")))
}

func TestRunStorageFailureDoesNotNotify(t *testing.T) {
	f := &stubFetcher{docs: map[string]*models.Document{"9": docWith("JUAN AMADOR MOJICA")}}
	n := &recordingNotifier{}
	now := fixedNow
	r := newRunner(f, brokenStore{}, n, metrics.New(), &now)

	sum := r.Run(context.Background(), []models.SearchTarget{{Name: "juan amador mojica", District: 9}})
	require.Equal(t, 1, sum.Matches)
	require.Equal(t, 1, sum.Suppressed)
	require.Empty(t, n.sent)
}

func TestRunNotifierFailureContinues(t *testing.T) {
	f := &stubFetcher{docs: map[string]*models.Document{
		"1": docWith("Exp. 1 PAOLA SAMANTHA"),
		"9": docWith("Exp. 9 PAOLA SAMANTHA"),
	}}
	n := &recordingNotifier{err: errors.New("telegram down")}
	m := metrics.New()
	now := fixedNow
	r := newRunner(f, dedupe.NewMemoryStore(100), n, m, &now)

	sum := r.Run(context.Background(), []models.SearchTarget{
		{Name: "Paola Samantha", District: 1},
		{Name: "Paola Samantha", District: 9},
	})
	require.Equal(t, 2, sum.Accepted)
	require.Equal(t, 2, sum.NotifyFailed)
	require.Len(t, n.sent, 2)
	require.Equal(t, 2.0, testutil.ToFloat64(m.NotifyFailures))
}

func TestRunUsesLocationForQueryWindow(t *testing.T) {
	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)

	f := &stubFetcher{errs: map[string]error{"1": bulletin.ErrNoTable}}
	r := pipeline.NewRunner(f, scanner.New(""), dedupe.NewGate(dedupe.NewMemoryStore(1), 0, nil), &recordingNotifier{},
		pipeline.WithClock(func() time.Time { return time.Date(2024, 6, 16, 3, 0, 0, 0, time.UTC) }),
		pipeline.WithLocation(loc),
	)
	r.Run(context.Background(), []models.SearchTarget{{Name: "x", District: 1}})
	require.Equal(t, []string{"opcion=area&start=2024-05-20&end=2024-06-15&dato=&distritos=1"}, f.payloads)
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	f := &stubFetcher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	now := fixedNow
	sum := newRunner(f, dedupe.NewMemoryStore(1), &recordingNotifier{}, metrics.New(), &now).
		Run(ctx, []models.SearchTarget{{Name: "x", District: 1}})
	require.Zero(t, sum.Targets)
	require.Empty(t, f.payloads)
}

func TestRunWithNilMetricsUsesDefaults(t *testing.T) {
	f := &stubFetcher{docs: map[string]*models.Document{"9": docWith("JUAN AMADOR MOJICA")}}
	n := &recordingNotifier{}
	now := fixedNow
	r := newRunner(f, dedupe.NewMemoryStore(10), n, nil, &now)

	var sum pipeline.Summary
	require.NotPanics(t, func() {
		sum = r.Run(context.Background(), []models.SearchTarget{{Name: "Juan Amador Mojica", District: 9}})
	})
	require.Equal(t, 1, sum.Accepted)
	require.Len(t, n.sent, 1)
}
