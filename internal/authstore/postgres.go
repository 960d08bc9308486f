package authstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/EduardoMirandaz/sabrinator/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses, extracted so tests can
// substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_user":         `INSERT INTO users (id, username, role, name, phone, password_hash, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"get_user_by_name":    `SELECT id, username, role, name, phone, password_hash, created_at FROM users WHERE username = $1`,
	"get_user_by_id":      `SELECT id, username, role, name, phone, password_hash, created_at FROM users WHERE id = $1`,
	"insert_invite":       `INSERT INTO invites (token, expires_at, max_uses, uses) VALUES ($1, $2, $3, $4)`,
	"consume_invite":      `UPDATE invites SET uses = uses + 1 WHERE token = $1 AND uses < max_uses`,
	"save_subscription":   `INSERT INTO push_subscriptions (endpoint, p256dh, auth, created_by, created_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (endpoint) DO NOTHING`,
	"delete_subscription": `DELETE FROM push_subscriptions WHERE endpoint = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	role          TEXT NOT NULL DEFAULT 'user',
	name          TEXT NOT NULL,
	phone         TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS invites (
	token      TEXT PRIMARY KEY,
	expires_at TIMESTAMPTZ NOT NULL,
	max_uses   INTEGER NOT NULL DEFAULT 1,
	uses       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS push_subscriptions (
	endpoint   TEXT PRIMARY KEY,
	p256dh     TEXT NOT NULL,
	auth       TEXT NOT NULL,
	created_by TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_invites_expires_at ON invites(expires_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, role, name, phone, password_hash, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Username, string(user.Role), user.Name, user.Phone, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateUser
		}
		return eris.Wrap(err, "postgres: insert user")
	}
	return nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, username, role, name, phone, password_hash, created_at FROM users WHERE username = $1`,
		username,
	)
	return scanUserRow(row)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, username, role, name, phone, password_hash, created_at FROM users WHERE id = $1`,
		id,
	)
	return scanUserRow(row)
}

func (s *PostgresStore) CreateInvite(ctx context.Context, invite model.Invite) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO invites (token, expires_at, max_uses, uses) VALUES ($1, $2, $3, $4)`,
		invite.Token, invite.ExpiresAt, invite.MaxUses, invite.Uses,
	)
	return eris.Wrap(err, "postgres: insert invite")
}

func (s *PostgresStore) GetInvite(ctx context.Context, token string) (*model.Invite, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT token, expires_at, max_uses, uses FROM invites WHERE token = $1`,
		token,
	)
	var inv model.Invite
	err := row.Scan(&inv.Token, &inv.ExpiresAt, &inv.MaxUses, &inv.Uses)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan invite")
	}
	inv.Used = inv.Uses >= inv.MaxUses
	return &inv, nil
}

func (s *PostgresStore) ListInvites(ctx context.Context) ([]model.Invite, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT token, expires_at, max_uses, uses FROM invites ORDER BY expires_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list invites")
	}
	defer rows.Close()

	var invites []model.Invite
	for rows.Next() {
		var inv model.Invite
		if err := rows.Scan(&inv.Token, &inv.ExpiresAt, &inv.MaxUses, &inv.Uses); err != nil {
			return nil, eris.Wrap(err, "postgres: scan invite")
		}
		inv.Used = inv.Uses >= inv.MaxUses
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

func (s *PostgresStore) RevokeInvite(ctx context.Context, token string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM invites WHERE token = $1`, token)
	if err != nil {
		return eris.Wrap(err, "postgres: revoke invite")
	}
	if tag.RowsAffected() == 0 {
		return ErrInviteNotFound
	}
	return nil
}

func (s *PostgresStore) ConsumeInvite(ctx context.Context, token string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE invites SET uses = uses + 1 WHERE token = $1 AND uses < max_uses`,
		token,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: consume invite")
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetInvite(ctx, token); err != nil {
			return err
		}
		return ErrInviteConsumed
	}
	return nil
}

func (s *PostgresStore) SaveSubscription(ctx context.Context, sub model.PushSubscription) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO push_subscriptions (endpoint, p256dh, auth, created_by, created_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (endpoint) DO NOTHING`,
		sub.Endpoint, sub.Keys.P256DH, sub.Keys.Auth, sub.CreatedBy, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save subscription")
}

func (s *PostgresStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	return eris.Wrap(err, "postgres: delete subscription")
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT endpoint, p256dh, auth, created_by FROM push_subscriptions ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list subscriptions")
	}
	defer rows.Close()

	var subs []model.PushSubscription
	for rows.Next() {
		var sub model.PushSubscription
		if err := rows.Scan(&sub.Endpoint, &sub.Keys.P256DH, &sub.Keys.Auth, &sub.CreatedBy); err != nil {
			return nil, eris.Wrap(err, "postgres: scan subscription")
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func scanUserRow(row pgx.Row) (*model.User, error) {
	var u model.User
	var role string
	err := row.Scan(&u.ID, &u.Username, &role, &u.Name, &u.Phone, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan user")
	}
	u.Role = model.Role(role)
	return &u, nil
}
