package bulletin_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DeafMist/boletin-radar/internal/bulletin"
	"github.com/stretchr/testify/require"
)

func TestFetcherPostsPayload(t *testing.T) {
	payload := "opcion=area&start=2024-05-20&end=2024-06-15&dato=&distritos=9"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.Equal(t, bulletin.DefaultUserAgent, r.Header.Get("User-Agent"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Equal(t, payload, string(body))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, `<table><tr><td><p>Exp. 1/2024 JUAN</p></td></tr></table>`)
	}))
	defer srv.Close()

	f := bulletin.NewFetcher(srv.URL)
	doc, err := f.Fetch(context.Background(), payload)
	require.NoError(t, err)
	require.Len(t, doc.Rows, 1)
	require.Equal(t, "Exp. 1/2024 JUAN", doc.Rows[0].Cells[0].Paragraphs[0].Text)
}

func TestFetcherCustomUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		_, _ = io.WriteString(w, `<table></table>`)
	}))
	defer srv.Close()

	_, err := bulletin.NewFetcher(srv.URL, bulletin.WithUserAgent("radar/1.0")).Fetch(context.Background(), "x=1")
	require.NoError(t, err)
	require.Equal(t, "radar/1.0", got)
}

func TestFetcherDecodesLatin1(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
		_, _ = w.Write([]byte("<table><tr><td><p>DOM\xcdNGUEZ Pe\xf1a</p></td></tr></table>"))
	}))
	defer srv.Close()

	doc, err := bulletin.NewFetcher(srv.URL).Fetch(context.Background(), "x=1")
	require.NoError(t, err)
	require.Equal(t, "DOMÍNGUEZ Peña", doc.Rows[0].Cells[0].Paragraphs[0].Text)
}

func TestFetcherNon2xxIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := bulletin.NewFetcher(srv.URL).Fetch(context.Background(), "x=1")
	var te *bulletin.TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	require.Equal(t, srv.URL, te.URL)
}

func TestFetcherConnectionFailureIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := bulletin.NewFetcher(url).Fetch(context.Background(), "x=1")
	var te *bulletin.TransportError
	require.True(t, errors.As(err, &te))
	require.Zero(t, te.StatusCode)
	require.Error(t, te.Unwrap())
}

func TestFetcherNoTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html><body>No se encontraron registros</body></html>")
	}))
	defer srv.Close()

	_, err := bulletin.NewFetcher(srv.URL).Fetch(context.Background(), "x=1")
	require.True(t, errors.Is(err, bulletin.ErrNoTable))
}

func TestFetcherRateLimitHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<table></table>`)
	}))
	defer srv.Close()

	f := bulletin.NewFetcher(srv.URL, bulletin.WithRateLimit(0.01))
	_, err := f.Fetch(context.Background(), "x=1")
	require.NoError(t, err)

	// The single token is spent; the next wait would exceed the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, "x=1")
	require.Error(t, err)
	var te *bulletin.TransportError
	require.False(t, errors.As(err, &te))
}
