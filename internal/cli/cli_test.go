package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/note-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/metrics"
)

func memoryBackend(src indexer.DocumentSource) *Backend {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	svc := search.New(index.NewMemoryStore(), tokenizer.New(nil), m, search.Options{})
	return &Backend{Service: svc, Source: src}
}

func run(t *testing.T, b *Backend, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(func(*config.Config) (*Backend, error) { return b, nil })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestIndexAndSearch(t *testing.T) {
	b := memoryBackend(nil)
	for _, args := range [][]string{
		{"index", "1", "go services"},
		{"index", "2", "go go"},
		{"index", "3", "pasta"},
	} {
		_, err := run(t, b, "", args...)
		require.NoError(t, err)
	}

	out, err := run(t, b, "", "search", "go")
	require.NoError(t, err)
	first, second := strings.Index(out, "2\t0.8109"), strings.Index(out, "1\t0.4055")
	require.GreaterOrEqual(t, first, 0, out)
	require.Greater(t, second, first, out)
	assert.Contains(t, out, "total: 2")

	out, err = run(t, b, "", "search", "--json", "-n", "1", "go")
	require.NoError(t, err)
	var res search.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, []int64{2}, res.DocumentIDs)

	out, err = run(t, b, "", "search", "--cursor", res.NextCursor, "go")
	require.NoError(t, err)
	assert.Contains(t, out, "1\t0.4055")

	out, err = run(t, b, "", "search", "nothing")
	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")
}

func TestRemoveAndStats(t *testing.T) {
	b := memoryBackend(nil)
	_, err := run(t, b, "", "index", "7", "hello world")
	require.NoError(t, err)
	_, err = run(t, b, "", "remove", "7")
	require.NoError(t, err)

	out, err := run(t, b, "", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "documents: 0")
}

func TestHighlight(t *testing.T) {
	b := memoryBackend(nil)
	out, err := run(t, b, "", "highlight", "-t", "go", "<p>go now</p>")
	require.NoError(t, err)
	assert.Equal(t, "<p><mark>go</mark> now</p>\n", out)

	out, err = run(t, b, `<a title="go">go</a>`, "highlight", "--tokens", "go", "-")
	require.NoError(t, err)
	assert.Equal(t, `<a title="go"><mark>go</mark></a>`+"\n", out)
}

func TestRebuild(t *testing.T) {
	_, err := run(t, memoryBackend(nil), "", "rebuild")
	assert.ErrorIs(t, err, errNoSource)

	src := indexer.SliceSource{
		{ID: 1, Text: "first note"},
		{ID: 2, Text: "second note"},
	}
	b := memoryBackend(src)
	out, err := run(t, b, "", "rebuild")
	require.NoError(t, err)
	assert.Contains(t, out, "indexed: 2")

	out, err = run(t, b, "", "stats", "--json")
	require.NoError(t, err)
	var stats search.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, int64(2), stats.Index.DocumentCount)
}

func TestArgumentErrors(t *testing.T) {
	b := memoryBackend(nil)

	_, err := run(t, b, "", "search")
	assert.ErrorContains(t, err, "accepts 1 arg(s)")

	_, err = run(t, b, "", "index", "abc", "text")
	assert.ErrorContains(t, err, "not an integer")

	_, err = run(t, b, "", "index", "1", "?!")
	assert.ErrorIs(t, err, apperrors.ErrInvalidDocument)
}
