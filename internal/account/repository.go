package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Repository implements Store on top of Postgres. Every operation is a
// single-row statement; refresh rotation needs no transaction because the
// token pair lives on the user row itself.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

const userColumns = `
	id, email, password_hash, first_name, last_name, email_confirmed,
	refresh_token, refresh_token_expires_at, created_at, updated_at`

func (r *Repository) FindByEmail(ctx context.Context, email string) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT`+userColumns+`
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user by email: %w", err)
	}

	return user, nil
}

// FindByRefreshToken does an exact-match lookup against the partial unique
// index on refresh_token; it runs on every refresh call.
func (r *Repository) FindByRefreshToken(ctx context.Context, token string) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT`+userColumns+`
		FROM users
		WHERE refresh_token = $1
	`, token)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user by refresh token: %w", err)
	}

	return user, nil
}

// Create inserts a new user. A unique violation on the email index is the
// authoritative duplicate signal and maps to UserAlreadyExistsError.
func (r *Repository) Create(ctx context.Context, user User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (
			id, email, password_hash, first_name, last_name, email_confirmed,
			refresh_token, refresh_token_expires_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		user.ID,
		user.Email,
		nullString(user.PasswordHash),
		user.FirstName,
		user.LastName,
		user.EmailConfirmed,
		user.RefreshToken,
		nullTime(user.RefreshTokenExpiresAt),
		user.CreatedAt.UTC(),
		user.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return UserAlreadyExistsError{Email: user.Email}
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// Update persists the mutable fields, including the refresh pair rotation.
func (r *Repository) Update(ctx context.Context, user User) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET email = $2,
			password_hash = $3,
			first_name = $4,
			last_name = $5,
			email_confirmed = $6,
			refresh_token = $7,
			refresh_token_expires_at = $8,
			updated_at = $9
		WHERE id = $1
	`,
		user.ID,
		user.Email,
		nullString(user.PasswordHash),
		user.FirstName,
		user.LastName,
		user.EmailConfirmed,
		user.RefreshToken,
		nullTime(user.RefreshTokenExpiresAt),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user rows affected: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// UpsertExternalLogin attaches a (provider, key) link to a user. Re-linking
// the same pair is a no-op, so provider logins stay idempotent.
func (r *Repository) UpsertExternalLogin(ctx context.Context, login ExternalLogin) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_external_logins (provider, provider_key, user_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_key) DO UPDATE
		SET user_id = EXCLUDED.user_id
	`, login.Provider, login.ProviderKey, login.UserID, login.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert external login: %w", err)
	}

	return nil
}

// ExpireStaleRefreshTokens clears refresh pairs whose expiry is older than
// the cutoff and reports how many rows were touched.
func (r *Repository) ExpireStaleRefreshTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token = NULL,
			refresh_token_expires_at = NULL,
			updated_at = NOW()
		WHERE refresh_token_expires_at < $1
	`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("expire stale refresh tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale refresh tokens rows affected: %w", err)
	}

	return affected, nil
}

func scanUser(row *sql.Row) (User, error) {
	var user User
	var passwordHash sql.NullString
	var refreshToken sql.NullString
	var refreshExpires sql.NullTime

	err := row.Scan(
		&user.ID,
		&user.Email,
		&passwordHash,
		&user.FirstName,
		&user.LastName,
		&user.EmailConfirmed,
		&refreshToken,
		&refreshExpires,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}

	user.PasswordHash = passwordHash.String
	if refreshToken.Valid {
		value := refreshToken.String
		user.RefreshToken = &value
	}
	if refreshExpires.Valid {
		value := refreshExpires.Time.UTC()
		user.RefreshTokenExpiresAt = &value
	}

	return user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}
