package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sap-labs-france/ev-server-sub011/internal/models"
)

// UserRepository resolves users from badge tags. Account management itself
// lives outside this module; only lookups are needed here.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository returns the repository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByTag resolves the user owning a badge tag, or (nil, nil) when the tag
// is unknown.
func (r *UserRepository) FindByTag(ctx context.Context, tenantID, tagID string) (*models.User, error) {
	const query = `
		SELECT u.id, u.tenant_id, u.name, u.email, u.role
		FROM users u
		JOIN user_badges b ON b.user_id = u.id AND b.tenant_id = u.tenant_id
		WHERE b.tenant_id = $1 AND b.tag_id = $2
	`
	var u models.User
	err := r.db.QueryRowContext(ctx, query, tenantID, tagID).Scan(
		&u.ID, &u.TenantID, &u.Name, &u.Email, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
