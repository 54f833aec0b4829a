package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/movieservice/auth-service/internal/apperr"
	"github.com/movieservice/auth-service/internal/database"
	"github.com/movieservice/auth-service/internal/models"
)

const userColumns = `id, email, username, hashed_password, is_active, is_superuser,
	oauth_provider, oauth_id, name, profile_image, created_at, updated_at`

const accountColumns = `id, user_id, provider, provider_user_id, access_token, refresh_token,
	expires_at, created_at, updated_at`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// SQLRepository implements Repository over database/sql for PostgreSQL,
// MySQL and SQLite.
type SQLRepository struct {
	db      *sql.DB
	dialect database.Dialect
	now     func() time.Time
}

func NewSQLRepository(db *sql.DB, dialect database.Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect, now: time.Now}
}

func (r *SQLRepository) q(query string) string { return r.dialect.Rebind(query) }

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u                                            models.User
		email, hashed, provider, oauthID, name, image sql.NullString
	)
	err := row.Scan(&u.ID, &email, &u.Username, &hashed, &u.IsActive, &u.IsSuperuser,
		&provider, &oauthID, &name, &image, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Email = email.String
	u.HashedPassword = hashed.String
	u.OAuthProvider = provider.String
	u.OAuthID = oauthID.String
	u.Name = name.String
	u.ProfileImage = image.String
	return &u, nil
}

func scanAccount(row rowScanner) (*models.OAuthAccount, error) {
	var (
		a               models.OAuthAccount
		provider        string
		access, refresh sql.NullString
		expires         sql.NullTime
	)
	err := row.Scan(&a.ID, &a.UserID, &provider, &a.ProviderUserID, &access, &refresh,
		&expires, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Provider = models.Provider(provider)
	a.AccessToken = access.String
	a.RefreshToken = refresh.String
	if expires.Valid {
		t := expires.Time
		a.ExpiresAt = &t
	}
	return &a, nil
}

func (r *SQLRepository) getUser(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, r.q(`SELECT `+userColumns+` FROM users WHERE `+where+` = ?`), arg)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("users: get by %s: %w", where, err)
	}
	return u, nil
}

func (r *SQLRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getUser(ctx, "id", id)
}

func (r *SQLRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	return r.getUser(ctx, "email", email)
}

func (r *SQLRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getUser(ctx, "username", username)
}

func (r *SQLRepository) insertUser(ctx context.Context, qr querier, u *models.User) error {
	_, err := qr.ExecContext(ctx, r.q(`INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		u.ID, nullString(u.Email), u.Username, nullString(u.HashedPassword), u.IsActive, u.IsSuperuser,
		nullString(u.OAuthProvider), nullString(u.OAuthID), nullString(u.Name), nullString(u.ProfileImage),
		u.CreatedAt.UTC(), u.UpdatedAt.UTC())
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("users: insert user %q: %w", u.Username, apperr.ErrDuplicateIdentity)
		}
		return fmt.Errorf("users: insert user: %w", err)
	}
	return nil
}

func (r *SQLRepository) insertAccount(ctx context.Context, qr querier, a *models.OAuthAccount) error {
	args := []interface{}{a.UserID, string(a.Provider), a.ProviderUserID, nullString(a.AccessToken),
		nullString(a.RefreshToken), nullTime(a.ExpiresAt), a.CreatedAt.UTC(), a.UpdatedAt.UTC()}
	query := `INSERT INTO oauth_accounts (user_id, provider, provider_user_id, access_token, refresh_token,
		expires_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var err error
	if r.dialect.SupportsReturning() {
		err = qr.QueryRowContext(ctx, r.q(query+` RETURNING id`), args...).Scan(&a.ID)
	} else {
		var res sql.Result
		if res, err = qr.ExecContext(ctx, r.q(query), args...); err == nil {
			a.ID, err = res.LastInsertId()
		}
	}
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("users: link %s/%s: %w", a.Provider, a.ProviderUserID, apperr.ErrDuplicateIdentity)
		}
		return fmt.Errorf("users: insert oauth account: %w", err)
	}
	return nil
}

func (r *SQLRepository) Create(ctx context.Context, u *models.User) error {
	prepareUser(u, r.now().UTC())
	return r.insertUser(ctx, r.db, u)
}

func (r *SQLRepository) Update(ctx context.Context, u *models.User) error {
	u.Email = NormalizeEmail(u.Email)
	u.UpdatedAt = r.now().UTC()
	res, err := r.db.ExecContext(ctx, r.q(`UPDATE users SET email = ?, username = ?, hashed_password = ?,
		is_active = ?, is_superuser = ?, oauth_provider = ?, oauth_id = ?, name = ?, profile_image = ?,
		updated_at = ? WHERE id = ?`),
		nullString(u.Email), u.Username, nullString(u.HashedPassword), u.IsActive, u.IsSuperuser,
		nullString(u.OAuthProvider), nullString(u.OAuthID), nullString(u.Name), nullString(u.ProfileImage),
		u.UpdatedAt, u.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("users: update %s: %w", u.ID, apperr.ErrDuplicateIdentity)
		}
		return fmt.Errorf("users: update: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("users: update %s: %w", u.ID, apperr.ErrNotFound)
	}
	return nil
}

func (r *SQLRepository) CreateWithOAuthAccount(ctx context.Context, u *models.User, acc *models.OAuthAccount) error {
	now := r.now().UTC()
	prepareUser(u, now)
	prepareAccount(acc, now)
	acc.UserID = u.ID

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("users: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.insertUser(ctx, tx, u); err != nil {
		return err
	}
	if err := r.insertAccount(ctx, tx, acc); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("users: commit: %w", err)
	}
	return nil
}

func (r *SQLRepository) CreateOAuthAccount(ctx context.Context, acc *models.OAuthAccount) error {
	prepareAccount(acc, r.now().UTC())
	return r.insertAccount(ctx, r.db, acc)
}

func (r *SQLRepository) FindOAuthAccount(ctx context.Context, provider models.Provider, providerUserID string) (*models.OAuthAccount, error) {
	row := r.db.QueryRowContext(ctx, r.q(`SELECT `+accountColumns+` FROM oauth_accounts
		WHERE provider = ? AND provider_user_id = ?`), string(provider), providerUserID)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("users: find oauth account: %w", err)
	}
	return a, nil
}

func (r *SQLRepository) ListOAuthAccounts(ctx context.Context, userID string) ([]*models.OAuthAccount, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`SELECT `+accountColumns+` FROM oauth_accounts
		WHERE user_id = ? ORDER BY id`), userID)
	if err != nil {
		return nil, fmt.Errorf("users: list oauth accounts: %w", err)
	}
	defer rows.Close()

	var out []*models.OAuthAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("users: scan oauth account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLRepository) UpdateOAuthTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error {
	_, err := r.db.ExecContext(ctx, r.q(`UPDATE oauth_accounts SET access_token = ?, refresh_token = ?,
		expires_at = ?, updated_at = ? WHERE id = ?`),
		nullString(accessToken), nullString(refreshToken), nullTime(expiresAt), r.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("users: update oauth tokens: %w", err)
	}
	return nil
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
