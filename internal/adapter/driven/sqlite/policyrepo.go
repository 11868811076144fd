package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/prharmony/internal/domain/model"
	"github.com/ericfisherdev/prharmony/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PolicyStore = (*PolicyRepo)(nil)

// PolicyRepo is the SQLite implementation of the PolicyStore port interface.
// Documents are stored in their wire form; a project-wide scope uses an
// empty repo_slug.
type PolicyRepo struct {
	db *DB
}

// NewPolicyRepo creates a new PolicyRepo backed by the given DB.
func NewPolicyRepo(db *DB) *PolicyRepo {
	return &PolicyRepo{db: db}
}

// Load returns the document stored for scope, or model.NewPolicy() if the
// scope was never configured.
func (r *PolicyRepo) Load(ctx context.Context, scope model.ScopeKey) (model.Policy, error) {
	const query = `
		SELECT document
		FROM policies
		WHERE project_key = ? AND repo_slug = ?
	`

	var doc string
	err := r.db.Reader.QueryRowContext(ctx, query, scope.ProjectKey, scope.RepoSlug).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewPolicy(), nil
	}
	if err != nil {
		return model.Policy{}, fmt.Errorf("load policy for %s: %w", scope, err)
	}

	return model.DecodePolicy([]byte(doc)), nil
}

// Save replaces the document stored for scope.
func (r *PolicyRepo) Save(ctx context.Context, scope model.ScopeKey, policy model.Policy) error {
	const query = `
		INSERT INTO policies (project_key, repo_slug, document, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_key, repo_slug) DO UPDATE SET
			document = excluded.document,
			updated_at = excluded.updated_at
	`

	doc, err := model.EncodePolicy(policy)
	if err != nil {
		return fmt.Errorf("encode policy for %s: %w", scope, err)
	}

	_, err = r.db.Writer.ExecContext(ctx, query,
		scope.ProjectKey, scope.RepoSlug, string(doc), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save policy for %s: %w", scope, err)
	}

	return nil
}

// ListScopes returns every configured scope ordered by project then repo.
func (r *PolicyRepo) ListScopes(ctx context.Context) ([]model.ScopeKey, error) {
	const query = `
		SELECT project_key, repo_slug
		FROM policies
		ORDER BY project_key, repo_slug
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list policy scopes: %w", err)
	}
	defer rows.Close()

	scopes := []model.ScopeKey{}
	for rows.Next() {
		var s model.ScopeKey
		if err := rows.Scan(&s.ProjectKey, &s.RepoSlug); err != nil {
			return nil, fmt.Errorf("scan policy scope: %w", err)
		}
		scopes = append(scopes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policy scopes: %w", err)
	}

	return scopes, nil
}
