package cdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/ejacobg/link-validator/content"
	"github.com/lib/pq"
)

var (
	publishedContentQuery = `
SELECT id, title, body, status FROM content_items
WHERE status = $1 AND NOT (id = ANY($2))
ORDER BY id`

	findContentQuery = "SELECT id, title, body, status FROM content_items WHERE id = $1"
)

// ContentSource reads content items from the content_items table. The table
// is owned by the content management system; it is never written here.
type ContentSource struct {
	db *sql.DB
}

// NewContentSource returns a ContentSource that reads from the database at
// dsn.
func NewContentSource(dsn string) (*ContentSource, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("content source: %w", err)
	}
	return &ContentSource{db: db}, nil
}

// Close terminates the connection to the backing database.
func (cs *ContentSource) Close() error {
	return cs.db.Close()
}

// Published returns every published item whose ID is not in exclude.
func (cs *ContentSource) Published(ctx context.Context, exclude []string) ([]*content.Item, error) {
	// A NULL array would make the NOT ANY predicate NULL for every row.
	if exclude == nil {
		exclude = []string{}
	}

	rows, err := cs.db.QueryContext(ctx, publishedContentQuery, content.StatusPublished, pq.Array(exclude))
	if err != nil {
		return nil, fmt.Errorf("published content: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*content.Item
	for rows.Next() {
		item := new(content.Item)
		if err = rows.Scan(&item.ID, &item.Title, &item.Body, &item.Status); err != nil {
			return nil, fmt.Errorf("published content: %w", err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("published content: %w", err)
	}
	return items, nil
}

// Get looks up an item by its ID.
func (cs *ContentSource) Get(ctx context.Context, id string) (*content.Item, error) {
	item := new(content.Item)
	row := cs.db.QueryRowContext(ctx, findContentQuery, id)
	if err := row.Scan(&item.ID, &item.Title, &item.Body, &item.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get content: %w", content.ErrNotFound)
		}
		return nil, fmt.Errorf("get content: %w", err)
	}
	return item, nil
}

// IsDraft reports whether the item with the given ID is a draft.
func (cs *ContentSource) IsDraft(ctx context.Context, id string) (bool, error) {
	item, err := cs.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return content.IsDraft(item.Status), nil
}
