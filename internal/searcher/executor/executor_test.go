package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/note-search/pkg/errors"
)

type failingStore struct {
	index.Store
}

func (failingStore) Postings(context.Context, string) (index.PostingList, error) {
	return nil, apperrors.ErrStoreUnavailable
}

func seed(t *testing.T) index.Store {
	t.Helper()
	ctx := context.Background()
	s := index.NewMemoryStore()
	require.NoError(t, s.Replace(ctx, 1, map[string]int{"go": 3, "redis": 1}))
	require.NoError(t, s.Replace(ctx, 2, map[string]int{"go": 1}))
	require.NoError(t, s.Replace(ctx, 3, map[string]int{"kafka": 2}))
	return s
}

func TestExecuteOrSemantics(t *testing.T) {
	got, err := New(seed(t)).Execute(context.Background(), []string{"go", "kafka", "missing"})
	require.NoError(t, err)
	ids := make([]int64, len(got))
	for i, d := range got {
		ids[i] = d.DocID
	}
	assert.ElementsMatch(t, []int64{1, 2, 3}, ids)
	assert.Equal(t, []int64{3, 1, 2}, ids)
}

func TestExecuteDuplicateTerms(t *testing.T) {
	e := New(seed(t))
	once, err := e.Execute(context.Background(), []string{"go"})
	require.NoError(t, err)
	twice, err := e.Execute(context.Background(), []string{"go", "go"})
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestExecuteEmpty(t *testing.T) {
	got, err := New(seed(t)).Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = New(index.NewMemoryStore()).Execute(context.Background(), []string{"go"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExecuteStoreFailure(t *testing.T) {
	_, err := New(failingStore{seed(t)}).Execute(context.Background(), []string{"go"})
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}
