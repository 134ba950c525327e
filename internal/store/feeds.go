package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// CreateFeed inserts a feed and fills in its id.
func (s *Store) CreateFeed(ctx context.Context, feed *Feed) error {
	if feed.Handle == "" {
		return fmt.Errorf("feed handle must not be empty")
	}
	if feed.Language == "" {
		feed.Language = "en"
	}
	if feed.Aggregator == "" {
		feed.Aggregator = "logging"
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO feeds (handle, title, language, aggregator) VALUES ($1, $2, $3, $4) RETURNING id`,
		feed.Handle, feed.Title, feed.Language, feed.Aggregator).Scan(&feed.ID)
	if err != nil {
		return fmt.Errorf("create feed %q: %w", feed.Handle, err)
	}
	return nil
}

// GetFeed fetches a feed by id.
func (s *Store) GetFeed(ctx context.Context, id int64) (*Feed, error) {
	var feed Feed
	err := s.db.QueryRowContext(ctx,
		`SELECT id, handle, title, language, aggregator FROM feeds WHERE id = $1`, id).
		Scan(&feed.ID, &feed.Handle, &feed.Title, &feed.Language, &feed.Aggregator)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get feed %d: %w", id, err)
	}
	return &feed, nil
}

// GetFeedByHandle fetches a feed by its unique handle.
func (s *Store) GetFeedByHandle(ctx context.Context, handle string) (*Feed, error) {
	var feed Feed
	err := s.db.QueryRowContext(ctx,
		`SELECT id, handle, title, language, aggregator FROM feeds WHERE handle = $1`, handle).
		Scan(&feed.ID, &feed.Handle, &feed.Title, &feed.Language, &feed.Aggregator)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get feed %q: %w", handle, err)
	}
	return &feed, nil
}

// ListFeeds returns all feeds ordered by handle.
func (s *Store) ListFeeds(ctx context.Context) ([]Feed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, handle, title, language, aggregator FROM feeds ORDER BY handle`)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		var feed Feed
		if err := rows.Scan(&feed.ID, &feed.Handle, &feed.Title, &feed.Language, &feed.Aggregator); err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

// UpdateFeed rewrites a feed row.
func (s *Store) UpdateFeed(ctx context.Context, feed *Feed) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE feeds SET handle = $2, title = $3, language = $4, aggregator = $5 WHERE id = $1`,
		feed.ID, feed.Handle, feed.Title, feed.Language, feed.Aggregator)
	if err != nil {
		return fmt.Errorf("update feed %d: %w", feed.ID, err)
	}
	return requireRow(res)
}

// DeleteFeed removes a feed; its sources cascade.
func (s *Store) DeleteFeed(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM feeds WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete feed %d: %w", id, err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
