package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// EnsureSubscription finds or creates the subscription row for
// (service, node).
func (s *Store) EnsureSubscription(ctx context.Context, service, node string) (*Subscription, error) {
	var sub Subscription
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO subscriptions (service, node) VALUES ($1, $2)
		 ON CONFLICT (service, node) DO UPDATE SET service = EXCLUDED.service
		 RETURNING id, service, node, state`,
		service, node).
		Scan(&sub.ID, &sub.Service, &sub.Node, &sub.State)
	if err != nil {
		return nil, fmt.Errorf("ensure subscription %s/%s: %w", service, node, err)
	}
	return &sub, nil
}

// GetSubscription fetches by (service, node).
func (s *Store) GetSubscription(ctx context.Context, service, node string) (*Subscription, error) {
	var sub Subscription
	err := s.db.QueryRowContext(ctx,
		`SELECT id, service, node, state FROM subscriptions WHERE service = $1 AND node = $2`,
		service, node).
		Scan(&sub.ID, &sub.Service, &sub.Node, &sub.State)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription %s/%s: %w", service, node, err)
	}
	return &sub, nil
}

// SetSubscriptionState records the peer-confirmed state.
func (s *Store) SetSubscriptionState(ctx context.Context, id int64, state string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET state = $2 WHERE id = $1`, id, state)
	if err != nil {
		return fmt.Errorf("set subscription %d state: %w", id, err)
	}
	return requireRow(res)
}

// ListSubscriptions returns all subscription rows.
func (s *Store) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, service, node, state FROM subscriptions ORDER BY service, node`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ID, &sub.Service, &sub.Node, &sub.State); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteSubscription removes a subscription row; sources pointing at it
// are detached by the schema.
func (s *Store) DeleteSubscription(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subscription %d: %w", id, err)
	}
	return requireRow(res)
}
