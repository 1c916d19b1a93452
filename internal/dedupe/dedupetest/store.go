// Package dedupetest holds behavior checks shared by every dedupe.Store.
package dedupetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/boletin-radar/internal/dedupe"
	"github.com/DeafMist/boletin-radar/internal/models"
)

// RunStoreTests exercises the conditional-write contract of a Store.
// newStore must return an empty store on every call.
func RunStoreTests(t *testing.T, newStore func(t *testing.T) dedupe.Store) {
	t.Helper()
	ctx := context.Background()
	t0 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(7 * 24 * time.Hour)

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, found, err := s.Get(ctx, "nadie")
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("create then get", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, models.Record{Key: "exp. 1/2024 juan", Timestamp: t0, Message: "m1"}))

		rec, found, err := s.Get(ctx, "exp. 1/2024 juan")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "exp. 1/2024 juan", rec.Key)
		require.True(t, t0.Equal(rec.Timestamp), "timestamp %s", rec.Timestamp)
		require.Equal(t, "m1", rec.Message)
		require.NotEmpty(t, rec.Revision)
	})

	t.Run("create existing conflicts", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, models.Record{Key: "k", Timestamp: t0, Message: "m1"}))
		err := s.Create(ctx, models.Record{Key: "k", Timestamp: t1, Message: "m2"})
		require.True(t, errors.Is(err, dedupe.ErrConflict), "got %v", err)

		rec, _, err := s.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, "m1", rec.Message)
	})

	t.Run("replace current revision", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, models.Record{Key: "k", Timestamp: t0, Message: "m1"}))
		prev, _, err := s.Get(ctx, "k")
		require.NoError(t, err)

		require.NoError(t, s.Replace(ctx, prev, models.Record{Key: "k", Timestamp: t1, Message: "m2"}))

		rec, found, err := s.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, found)
		require.True(t, t1.Equal(rec.Timestamp))
		require.Equal(t, "m2", rec.Message)
		require.NotEqual(t, prev.Revision, rec.Revision)
	})

	t.Run("replace stale revision conflicts", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, models.Record{Key: "k", Timestamp: t0, Message: "m1"}))
		prev, _, err := s.Get(ctx, "k")
		require.NoError(t, err)
		require.NoError(t, s.Replace(ctx, prev, models.Record{Key: "k", Timestamp: t1, Message: "winner"}))

		err = s.Replace(ctx, prev, models.Record{Key: "k", Timestamp: t1.Add(time.Minute), Message: "loser"})
		require.True(t, errors.Is(err, dedupe.ErrConflict), "got %v", err)

		rec, _, err := s.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, "winner", rec.Message)
	})

	t.Run("replace missing conflicts", func(t *testing.T) {
		s := newStore(t)
		prev := models.Record{Key: "ghost", Timestamp: t0, Revision: "1"}
		err := s.Replace(ctx, prev, models.Record{Key: "ghost", Timestamp: t1, Message: "m"})
		require.True(t, errors.Is(err, dedupe.ErrConflict), "got %v", err)
	})
}
