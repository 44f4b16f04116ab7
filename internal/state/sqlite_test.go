package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "ledger.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, Record{"monthSeconds": "3600", "monthKey": "2024-01"}))
	require.NoError(t, s.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()

	rec, err := s2.Get(ctx, "monthSeconds", "monthKey")
	require.NoError(t, err)
	assert.Equal(t, Record{"monthSeconds": "3600", "monthKey": "2024-01"}, rec)
}

func TestSQLiteStore_TwoHandlesShareData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	a, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Update(ctx, func(Record) (Record, error) {
		return Record{"sessionsToday": "2"}, nil
	}))
	rec, err := b.Get(ctx, "sessionsToday")
	require.NoError(t, err)
	assert.Equal(t, "2", rec["sessionsToday"])
}
