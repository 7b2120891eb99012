package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"openshelf.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

const uniqueViolation = "23505"

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) CreateAccount(ctx context.Context, acc *Account, profile *Profile) error {
	if acc.ID == "" {
		acc.ID = ids.New()
	}
	if acc.Status == "" {
		acc.Status = "active"
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`insert into accounts(id, email, password_hash, status) values($1,$2,$3,$4)`,
		acc.ID, acc.Email, acc.PasswordHash, acc.Status,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}
	profile.UserID = acc.ID
	if _, err := tx.ExecContext(ctx,
		`insert into profiles(user_id, first_name, last_name, grade, avatar_url) values($1,$2,$3,$4,$5)`,
		profile.UserID, profile.FirstName, profile.LastName, profile.Grade, profile.AvatarURL,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) FindAccount(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, status, created_at, updated_at from accounts where id=$1`, id)
	return scanAccount(row)
}

func (s *PGStore) FindAccountByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, status, created_at, updated_at from accounts where email=$1`, email)
	return scanAccount(row)
}

func (s *PGStore) Profile(ctx context.Context, userID string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		select user_id, first_name, last_name, grade, avatar_url, created_at, updated_at
		from profiles where user_id=$1`, userID)
	var p Profile
	if err := row.Scan(&p.UserID, &p.FirstName, &p.LastName, &p.Grade, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *PGStore) UpdateProfile(ctx context.Context, profile *Profile) error {
	res, err := s.db.ExecContext(ctx, `
		update profiles set first_name=$2, last_name=$3, grade=$4, avatar_url=$5, updated_at=now()
		where user_id=$1`,
		profile.UserID, profile.FirstName, profile.LastName, profile.Grade, profile.AvatarURL)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListProfiles(ctx context.Context) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		select user_id, first_name, last_name, grade, avatar_url, created_at, updated_at
		from profiles order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.UserID, &p.FirstName, &p.LastName, &p.Grade, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, &p)
	}
	return res, rows.Err()
}

func (s *PGStore) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `select role from user_roles where user_id=$1 order by role asc`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *PGStore) SetRole(ctx context.Context, userID, role string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id=$1`, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`insert into user_roles(id, user_id, role) values($1,$2,$3)`,
		ids.New(), userID, role,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func scanAccount(row *sql.Row) (*Account, error) {
	var acc Account
	if err := row.Scan(&acc.ID, &acc.Email, &acc.PasswordHash, &acc.Status, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &acc, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
