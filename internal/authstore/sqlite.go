package authstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/EduardoMirandaz/sabrinator/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	role          TEXT NOT NULL DEFAULT 'user',
	name          TEXT NOT NULL,
	phone         TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS invites (
	token      TEXT PRIMARY KEY,
	expires_at DATETIME NOT NULL,
	max_uses   INTEGER NOT NULL DEFAULT 1,
	uses       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS push_subscriptions (
	endpoint   TEXT PRIMARY KEY,
	p256dh     TEXT NOT NULL,
	auth       TEXT NOT NULL,
	created_by TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
CREATE INDEX IF NOT EXISTS idx_invites_expires_at ON invites(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Timestamps are stored in UTC; the driver cannot scan fixed-offset zones
// back into time.Time.
func (s *SQLiteStore) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, role, name, phone, password_hash, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, string(user.Role), user.Name, user.Phone, user.PasswordHash, user.CreatedAt.UTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return ErrDuplicateUser
		}
		return eris.Wrap(err, "sqlite: insert user")
	}
	return nil
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, role, name, phone, password_hash, created_at FROM users WHERE username = ?`,
		username,
	)
	return scanUser(row)
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, role, name, phone, password_hash, created_at FROM users WHERE id = ?`,
		id,
	)
	return scanUser(row)
}

func (s *SQLiteStore) CreateInvite(ctx context.Context, invite model.Invite) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invites (token, expires_at, max_uses, uses) VALUES (?, ?, ?, ?)`,
		invite.Token, invite.ExpiresAt.UTC(), invite.MaxUses, invite.Uses,
	)
	return eris.Wrap(err, "sqlite: insert invite")
}

func (s *SQLiteStore) GetInvite(ctx context.Context, token string) (*model.Invite, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token, expires_at, max_uses, uses FROM invites WHERE token = ?`,
		token,
	)
	return scanInvite(row)
}

func (s *SQLiteStore) ListInvites(ctx context.Context) ([]model.Invite, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token, expires_at, max_uses, uses FROM invites ORDER BY expires_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list invites")
	}
	defer rows.Close()

	var invites []model.Invite
	for rows.Next() {
		var inv model.Invite
		if err := rows.Scan(&inv.Token, &inv.ExpiresAt, &inv.MaxUses, &inv.Uses); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan invite")
		}
		inv.Used = inv.Uses >= inv.MaxUses
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

func (s *SQLiteStore) RevokeInvite(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM invites WHERE token = ?`, token)
	if err != nil {
		return eris.Wrap(err, "sqlite: revoke invite")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrInviteNotFound
	}
	return nil
}

func (s *SQLiteStore) ConsumeInvite(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE invites SET uses = uses + 1 WHERE token = ? AND uses < max_uses`,
		token,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: consume invite")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		if _, err := s.GetInvite(ctx, token); err != nil {
			return err
		}
		return ErrInviteConsumed
	}
	return nil
}

func (s *SQLiteStore) SaveSubscription(ctx context.Context, sub model.PushSubscription) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (endpoint, p256dh, auth, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO NOTHING`,
		sub.Endpoint, sub.Keys.P256DH, sub.Keys.Auth, sub.CreatedBy, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save subscription")
}

func (s *SQLiteStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	return eris.Wrap(err, "sqlite: delete subscription")
}

func (s *SQLiteStore) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT endpoint, p256dh, auth, created_by FROM push_subscriptions ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list subscriptions")
	}
	defer rows.Close()

	var subs []model.PushSubscription
	for rows.Next() {
		var sub model.PushSubscription
		if err := rows.Scan(&sub.Endpoint, &sub.Keys.P256DH, &sub.Keys.Auth, &sub.CreatedBy); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan subscription")
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	var role string
	err := row.Scan(&u.ID, &u.Username, &role, &u.Name, &u.Phone, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan user")
	}
	u.Role = model.Role(role)
	return &u, nil
}

func scanInvite(row *sql.Row) (*model.Invite, error) {
	var inv model.Invite
	err := row.Scan(&inv.Token, &inv.ExpiresAt, &inv.MaxUses, &inv.Uses)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan invite")
	}
	inv.Used = inv.Uses >= inv.MaxUses
	return &inv, nil
}
