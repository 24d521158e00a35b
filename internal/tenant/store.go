// Copyright 2024 Video Portal Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tenant resolves portal tenants and their platform credentials
package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a tenant slug does not resolve to an active
// tenant. Handlers map it to HTTP 404 with code TENANT_NOT_FOUND.
var ErrNotFound = errors.New("tenant not found")

// Tenant is one portal tenant with its platform identity
type Tenant struct {
	Slug          string    `json:"slug"`
	Name          string    `json:"name"`
	APIKey        string    `json:"-"`
	CollectionID  string    `json:"collection_id,omitempty"`
	CoachEndpoint string    `json:"coach_endpoint,omitempty"`
	CoachModel    string    `json:"coach_model,omitempty"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store persists tenants in SQLite
type Store struct {
	db *sql.DB
}

// NewStore opens the tenant database and initializes the schema
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open tenant database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize tenant schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	query := `
		CREATE TABLE IF NOT EXISTS tenants (
			slug TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			api_key TEXT NOT NULL,
			collection_id TEXT,
			coach_endpoint TEXT,
			coach_model TEXT,
			active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`

	_, err := s.db.Exec(query)
	return err
}

// Upsert inserts or replaces a tenant keyed by slug
func (s *Store) Upsert(ctx context.Context, t Tenant) error {
	if strings.TrimSpace(t.Slug) == "" {
		return fmt.Errorf("tenant slug cannot be empty")
	}
	if strings.TrimSpace(t.APIKey) == "" {
		return fmt.Errorf("tenant API key cannot be empty")
	}

	query := `
		INSERT OR REPLACE INTO tenants (slug, name, api_key, collection_id, coach_endpoint, coach_model, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		t.Slug, t.Name, t.APIKey, t.CollectionID, t.CoachEndpoint, t.CoachModel, boolToInt(t.Active))
	if err != nil {
		return fmt.Errorf("failed to upsert tenant: %w", err)
	}

	return nil
}

// GetBySlug returns the tenant for a slug, active or not
func (s *Store) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	query := `
		SELECT slug, name, api_key, collection_id, coach_endpoint, coach_model, active, created_at
		FROM tenants WHERE slug = ?
	`

	var t Tenant
	var active int
	var collectionID, coachEndpoint, coachModel sql.NullString

	err := s.db.QueryRowContext(ctx, query, slug).Scan(
		&t.Slug, &t.Name, &t.APIKey, &collectionID, &coachEndpoint, &coachModel, &active, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tenant: %w", err)
	}

	t.CollectionID = collectionID.String
	t.CoachEndpoint = coachEndpoint.String
	t.CoachModel = coachModel.String
	t.Active = active != 0

	return &t, nil
}

// List returns all tenants ordered by slug
func (s *Store) List(ctx context.Context) ([]Tenant, error) {
	query := `
		SELECT slug, name, api_key, collection_id, coach_endpoint, coach_model, active, created_at
		FROM tenants ORDER BY slug
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tenants []Tenant
	for rows.Next() {
		var t Tenant
		var active int
		var collectionID, coachEndpoint, coachModel sql.NullString

		if err := rows.Scan(&t.Slug, &t.Name, &t.APIKey, &collectionID, &coachEndpoint, &coachModel, &active, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}

		t.CollectionID = collectionID.String
		t.CoachEndpoint = coachEndpoint.String
		t.CoachModel = coachModel.String
		t.Active = active != 0
		tenants = append(tenants, t)
	}

	return tenants, rows.Err()
}

// Delete removes a tenant by slug
func (s *Store) Delete(ctx context.Context, slug string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE slug = ?`, slug)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
