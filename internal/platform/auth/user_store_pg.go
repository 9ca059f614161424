package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type userStorePG struct{ pool *pgxpool.Pool }

// NewUserStorePG stores users in shared.staff_user, which every clinic shares.
func NewUserStorePG(pool *pgxpool.Pool) UserStore { return &userStorePG{pool: pool} }

func (s *userStorePG) Create(ctx context.Context, u *User) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO shared.staff_user (email, password_hash, roles, clinic_id, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash,
			roles = EXCLUDED.roles, clinic_id = EXCLUDED.clinic_id, active = EXCLUDED.active
		RETURNING id, created_at`,
		u.Email, u.PasswordHash, u.Roles, u.ClinicID, u.Active,
	).Scan(&u.ID, &u.CreatedAt)
}

func (s *userStorePG) GetByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, roles, clinic_id, active, created_at
		FROM shared.staff_user WHERE email = $1`, email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Roles, &u.ClinicID, &u.Active, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s not found", email)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
