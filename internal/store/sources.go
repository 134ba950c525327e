package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const sourceColumns = `id, kind, feed_id, enabled, via, subscription_id,
	question_id, event_id, creator_id, race_id, agent_id, user_id, site_id,
	service, node_identifier, template, terms, user_ids`

func scanSource(row interface{ Scan(...any) error }) (*Source, error) {
	var src Source
	err := row.Scan(&src.ID, &src.Kind, &src.FeedID, &src.Enabled, &src.Via,
		&src.SubscriptionID,
		&src.QuestionID, &src.EventID, &src.CreatorID, &src.RaceID,
		&src.AgentID, &src.UserID, &src.SiteID,
		&src.Service, &src.NodeIdentifier, &src.Template,
		pq.Array(&src.Terms), pq.Array(&src.UserIDs))
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// CreateSource inserts a source row and fills in its id.
func (s *Store) CreateSource(ctx context.Context, src *Source) error {
	if src.Kind == "" {
		return fmt.Errorf("source kind must not be empty")
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO sources (kind, feed_id, enabled, via, subscription_id,
			question_id, event_id, creator_id, race_id, agent_id, user_id, site_id,
			service, node_identifier, template, terms, user_ids)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 RETURNING id`,
		src.Kind, src.FeedID, src.Enabled, src.Via, src.SubscriptionID,
		src.QuestionID, src.EventID, src.CreatorID, src.RaceID,
		src.AgentID, src.UserID, src.SiteID,
		src.Service, src.NodeIdentifier, src.Template,
		pq.Array(src.Terms), pq.Array(src.UserIDs)).Scan(&src.ID)
	if err != nil {
		return fmt.Errorf("create %s source: %w", src.Kind, err)
	}
	return nil
}

// GetSource fetches a source row by id.
func (s *Store) GetSource(ctx context.Context, id int64) (*Source, error) {
	src, err := scanSource(s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source %d: %w", id, err)
	}
	return src, nil
}

func (s *Store) querySources(ctx context.Context, query string, args ...any) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

// ListSources returns all source rows.
func (s *Store) ListSources(ctx context.Context) ([]Source, error) {
	sources, err := s.querySources(ctx,
		`SELECT `+sourceColumns+` FROM sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

// ListSourcesByFeed returns all sources owned by a feed.
func (s *Store) ListSourcesByFeed(ctx context.Context, feedID int64) ([]Source, error) {
	sources, err := s.querySources(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE feed_id = $1 ORDER BY id`, feedID)
	if err != nil {
		return nil, fmt.Errorf("list sources of feed %d: %w", feedID, err)
	}
	return sources, nil
}

// ListSourcesBySubscription returns the sources powered onto a
// subscription, enabled ones only.
func (s *Store) ListSourcesBySubscription(ctx context.Context, subscriptionID int64) ([]Source, error) {
	sources, err := s.querySources(ctx,
		`SELECT `+sourceColumns+` FROM sources
		 WHERE subscription_id = $1 AND enabled ORDER BY id`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("list sources of subscription %d: %w", subscriptionID, err)
	}
	return sources, nil
}

// ListEnabledTwitterSources returns enabled sources feeding off the
// microblog stream.
func (s *Store) ListEnabledTwitterSources(ctx context.Context) ([]Source, error) {
	sources, err := s.querySources(ctx,
		`SELECT `+sourceColumns+` FROM sources
		 WHERE kind = 'twitter' AND enabled ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list twitter sources: %w", err)
	}
	return sources, nil
}

// UpdateSource rewrites a source row.
func (s *Store) UpdateSource(ctx context.Context, src *Source) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sources SET kind = $2, feed_id = $3, enabled = $4, via = $5,
			subscription_id = $6, question_id = $7, event_id = $8, creator_id = $9,
			race_id = $10, agent_id = $11, user_id = $12, site_id = $13,
			service = $14, node_identifier = $15, template = $16, terms = $17, user_ids = $18
		 WHERE id = $1`,
		src.ID, src.Kind, src.FeedID, src.Enabled, src.Via,
		src.SubscriptionID, src.QuestionID, src.EventID, src.CreatorID,
		src.RaceID, src.AgentID, src.UserID, src.SiteID,
		src.Service, src.NodeIdentifier, src.Template,
		pq.Array(src.Terms), pq.Array(src.UserIDs))
	if err != nil {
		return fmt.Errorf("update source %d: %w", src.ID, err)
	}
	return requireRow(res)
}

// SetSourceSubscription points the source at its listening subscription,
// or detaches it when subscriptionID is invalid.
func (s *Store) SetSourceSubscription(ctx context.Context, sourceID int64, subscriptionID sql.NullInt64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sources SET subscription_id = $2 WHERE id = $1`, sourceID, subscriptionID)
	if err != nil {
		return fmt.Errorf("set source %d subscription: %w", sourceID, err)
	}
	return requireRow(res)
}

// DeleteSource removes a source row.
func (s *Store) DeleteSource(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete source %d: %w", id, err)
	}
	return requireRow(res)
}
