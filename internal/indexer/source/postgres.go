// Package source provides the document sources a rebuild reads from.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer"
)

// Postgres streams (id, content) rows of live posts. The query must select
// exactly two columns: an integer id and a text content.
type Postgres struct {
	db     *sql.DB
	query  string
	logger *slog.Logger
}

func NewPostgres(db *sql.DB, query string) *Postgres {
	return &Postgres{
		db:     db,
		query:  query,
		logger: slog.Default().With("component", "postgres-source"),
	}
}

// Scan calls fn for each row. A row whose content is NULL is passed with
// empty text so the indexer counts it as invalid; a row that cannot be
// scanned at all is logged and skipped.
func (p *Postgres) Scan(ctx context.Context, fn func(indexer.Document) error) error {
	rows, err := p.db.QueryContext(ctx, p.query)
	if err != nil {
		return fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var count, skipped int
	for rows.Next() {
		var (
			id      int64
			content sql.NullString
		)
		if err := rows.Scan(&id, &content); err != nil {
			skipped++
			p.logger.Error("skipping unreadable document row", "error", err)
			continue
		}
		if err := fn(indexer.Document{ID: id, Text: content.String}); err != nil {
			return err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating documents: %w", err)
	}
	p.logger.Info("document scan complete", "documents", count, "unreadable", skipped)
	return nil
}
