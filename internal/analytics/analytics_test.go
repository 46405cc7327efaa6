package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/kafka"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func TestAggregatorStats(t *testing.T) {
	a := NewAggregator()
	for i := 0; i < 3; i++ {
		a.Record(SearchEvent{Type: EventSearch, Query: "redis", TotalHits: 2, LatencyMs: 10})
	}
	a.Record(SearchEvent{Type: EventZeroResult, Query: "nothing", LatencyMs: 30, CacheHit: true})
	a.Record(SearchEvent{Type: EventSearch, Query: "redis", TotalHits: 2, LatencyMs: 20, Page: true})
	a.Record(IndexEvent{Type: EventIndexDocument, DocumentID: 1, Status: "ok"})
	a.Record(IndexEvent{Type: EventIndexDocument, DocumentID: 2, Status: "invalid"})
	a.Record(IndexEvent{Type: EventRemoveDocument, DocumentID: 1, Status: "ok"})
	a.Record(RebuildEvent{Type: EventRebuild, Indexed: 5})
	a.Record("ignored")

	s := a.Stats()
	assert.Equal(t, int64(5), s.TotalSearches)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(4), s.CacheMisses)
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.Equal(t, int64(1), s.DocsIndexed)
	assert.Equal(t, int64(1), s.DocsRemoved)
	assert.Equal(t, int64(1), s.Rebuilds)
	assert.Equal(t, []QueryCount{{Query: "redis", Count: 3}, {Query: "nothing", Count: 1}}, s.TopQueries)
	assert.Equal(t, []QueryCount{{Query: "nothing", Count: 1}}, s.ZeroResultQueries)
	assert.InDelta(t, 16.0, s.AvgLatencyMs, 0.001)
	assert.Equal(t, int64(30), s.P99LatencyMs)
}

func TestCollectorPublishesAndAggregates(t *testing.T) {
	pub := &recordingPublisher{}
	agg := NewAggregator()
	c := NewCollector(pub, agg, 16)
	c.Start(context.Background())

	c.Track(SearchEvent{Type: EventSearch, Query: "go", TotalHits: 1, Timestamp: time.Now()})
	c.Track(RebuildEvent{Type: EventRebuild})
	c.Close()

	require.Len(t, pub.events, 2)
	assert.Equal(t, "search", pub.events[0].Key)
	assert.Equal(t, "rebuild", pub.events[1].Key)
	assert.Equal(t, int64(1), agg.Stats().TotalSearches)
	assert.Same(t, agg, c.Aggregator())
}

func TestCollectorWithoutPublisher(t *testing.T) {
	agg := NewAggregator()
	c := NewCollector(nil, agg, 1)
	c.Start(context.Background())
	c.Track(SearchEvent{Type: EventSearch, Query: "a"})
	c.Track(SearchEvent{Type: EventSearch, Query: "b"})
	c.Close()
	assert.Equal(t, int64(2), agg.Stats().TotalSearches)
}

func TestCollectorSurvivesPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	c := NewCollector(pub, nil, 4)
	c.Start(context.Background())
	c.Track(IndexEvent{Type: EventIndexDocument, Status: "ok"})
	c.Close()
	assert.Len(t, pub.events, 1)
}

func TestCollectorTrackAfterClose(t *testing.T) {
	pub := &recordingPublisher{}
	agg := NewAggregator()
	c := NewCollector(pub, agg, 10)
	c.Start(context.Background())
	c.Close()

	assert.NotPanics(t, func() {
		c.Track(SearchEvent{Type: EventSearch, Query: "late"})
	})
	c.Close()
	assert.Empty(t, pub.events)
	assert.Equal(t, int64(1), agg.Stats().TotalSearches)
}

func TestCollectorConcurrentTrackAndClose(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, nil, 4)
	c.Start(context.Background())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				c.Track(IndexEvent{Type: EventIndexDocument, Status: "ok"})
			}
		}()
	}
	c.Close()
	wg.Wait()
}
