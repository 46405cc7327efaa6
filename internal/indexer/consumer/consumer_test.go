package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/note-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/resilience"
)

type fakeIndexer struct {
	indexed  map[int64]string
	removed  []int64
	failures int
	err      error
	calls    int
}

func (f *fakeIndexer) IndexDocument(_ context.Context, id int64, text string) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	if f.indexed == nil {
		f.indexed = make(map[int64]string)
	}
	f.indexed[id] = text
	return nil
}

func (f *fakeIndexer) RemoveDocument(_ context.Context, id int64) error {
	f.calls++
	f.removed = append(f.removed, id)
	return nil
}

var fastRetry = resilience.RetryConfig{
	MaxAttempts:  3,
	InitialDelay: time.Millisecond,
	MaxDelay:     time.Millisecond,
	Retryable:    apperrors.IsTransient,
}

func encode(t *testing.T, e PostEvent) []byte {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return b
}

func TestHandleMessageAppliesEvents(t *testing.T) {
	f := &fakeIndexer{}
	h := HandleMessage(f, fastRetry)
	ctx := context.Background()

	require.NoError(t, h(ctx, nil, encode(t, PostEvent{Type: EventPostCreated, ID: 1, Content: "hello"})))
	require.NoError(t, h(ctx, nil, encode(t, PostEvent{Type: EventPostUpdated, ID: 1, Content: "hello again"})))
	require.NoError(t, h(ctx, nil, encode(t, PostEvent{Type: EventPostDeleted, ID: 2})))

	assert.Equal(t, map[int64]string{1: "hello again"}, f.indexed)
	assert.Equal(t, []int64{2}, f.removed)
}

func TestHandleMessageDropsBadInput(t *testing.T) {
	f := &fakeIndexer{}
	h := HandleMessage(f, fastRetry)
	assert.NoError(t, h(context.Background(), []byte("k"), []byte("{not json")))
	assert.NoError(t, h(context.Background(), nil, encode(t, PostEvent{Type: "post.archived", ID: 3})))
	assert.Zero(t, f.calls)
}

func TestHandleMessageRetriesTransientErrors(t *testing.T) {
	f := &fakeIndexer{failures: 2, err: apperrors.ErrStoreUnavailable}
	h := HandleMessage(f, fastRetry)
	require.NoError(t, h(context.Background(), nil, encode(t, PostEvent{Type: EventPostCreated, ID: 5, Content: "x y"})))
	assert.Equal(t, 3, f.calls)
	assert.Contains(t, f.indexed, int64(5))
}

func TestHandleMessageGivesUp(t *testing.T) {
	f := &fakeIndexer{failures: 10, err: apperrors.ErrStoreUnavailable}
	err := HandleMessage(f, fastRetry)(context.Background(), nil, encode(t, PostEvent{Type: EventPostCreated, ID: 5}))
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.Equal(t, 3, f.calls)
}

func TestHandleMessageInvalidDocumentIsNotRetried(t *testing.T) {
	f := &fakeIndexer{failures: 10, err: apperrors.ErrInvalidDocument}
	err := HandleMessage(f, fastRetry)(context.Background(), nil, encode(t, PostEvent{Type: EventPostCreated, ID: 6}))
	assert.NoError(t, err)
	assert.Equal(t, 1, f.calls)
}
