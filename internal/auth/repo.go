package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCredentialNotFound indicates no credential exists for the principal.
// The authenticator folds this into ErrInvalidCredentials before anything
// reaches a caller.
var ErrCredentialNotFound = errors.New("credential not found")

// Repository defines read access to the identity store.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Credential, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches a credential and its role names by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Credential, error) {
	const query = `
		SELECT u.email, u.password_hash, u.first_name, u.last_name, u.is_active,
		       COALESCE(array_agg(ur.role) FILTER (WHERE ur.role IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_email = u.email
		WHERE u.email = $1
		GROUP BY u.email, u.password_hash, u.first_name, u.last_name, u.is_active`

	cred := &Credential{}
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&cred.Email,
		&cred.PasswordHash,
		&cred.FirstName,
		&cred.LastName,
		&cred.Active,
		&cred.Roles,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return cred, nil
}

// ExistsByEmail reports whether any credential exists for the email.
func (r *PGRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, email).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

var _ Repository = (*PGRepository)(nil)
