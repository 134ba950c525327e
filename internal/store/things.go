package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateThing inserts a thing and fills in its id.
func (s *Store) CreateThing(ctx context.Context, thing *Thing) error {
	if thing.URI == "" {
		return fmt.Errorf("thing uri must not be empty")
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO things (title, uri) VALUES ($1, $2) RETURNING id`,
		thing.Title, thing.URI).Scan(&thing.ID)
	if err != nil {
		return fmt.Errorf("create thing %q: %w", thing.URI, err)
	}
	return nil
}

// GetThing fetches a thing by id.
func (s *Store) GetThing(ctx context.Context, id int64) (*Thing, error) {
	var thing Thing
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, uri FROM things WHERE id = $1`, id).
		Scan(&thing.ID, &thing.Title, &thing.URI)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get thing %d: %w", id, err)
	}
	return &thing, nil
}

// ListThings returns all things ordered by id.
func (s *Store) ListThings(ctx context.Context) ([]Thing, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, uri FROM things ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list things: %w", err)
	}
	defer rows.Close()

	var things []Thing
	for rows.Next() {
		var thing Thing
		if err := rows.Scan(&thing.ID, &thing.Title, &thing.URI); err != nil {
			return nil, fmt.Errorf("scan thing: %w", err)
		}
		things = append(things, thing)
	}
	return things, rows.Err()
}

// UpdateThing rewrites a thing row.
func (s *Store) UpdateThing(ctx context.Context, thing *Thing) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE things SET title = $2, uri = $3 WHERE id = $1`,
		thing.ID, thing.Title, thing.URI)
	if err != nil {
		return fmt.Errorf("update thing %d: %w", thing.ID, err)
	}
	return requireRow(res)
}

// DeleteThing removes a thing.
func (s *Store) DeleteThing(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM things WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete thing %d: %w", id, err)
	}
	return requireRow(res)
}

// CreateSite inserts a site and fills in its id.
func (s *Store) CreateSite(ctx context.Context, site *Site) error {
	if site.URI == "" {
		return fmt.Errorf("site uri must not be empty")
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO sites (title, uri) VALUES ($1, $2) RETURNING id`,
		site.Title, site.URI).Scan(&site.ID)
	if err != nil {
		return fmt.Errorf("create site %q: %w", site.URI, err)
	}
	return nil
}

// GetSite fetches a site by id.
func (s *Store) GetSite(ctx context.Context, id int64) (*Site, error) {
	var site Site
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, uri FROM sites WHERE id = $1`, id).
		Scan(&site.ID, &site.Title, &site.URI)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get site %d: %w", id, err)
	}
	return &site, nil
}

// ListSites returns all sites ordered by id.
func (s *Store) ListSites(ctx context.Context) ([]Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, uri FROM sites ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var sites []Site
	for rows.Next() {
		var site Site
		if err := rows.Scan(&site.ID, &site.Title, &site.URI); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// UpdateSite rewrites a site row.
func (s *Store) UpdateSite(ctx context.Context, site *Site) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sites SET title = $2, uri = $3 WHERE id = $1`,
		site.ID, site.Title, site.URI)
	if err != nil {
		return fmt.Errorf("update site %d: %w", site.ID, err)
	}
	return requireRow(res)
}

// DeleteSite removes a site.
func (s *Store) DeleteSite(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sites WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete site %d: %w", id, err)
	}
	return requireRow(res)
}
