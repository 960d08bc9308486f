// Package auth implements invite-gated registration, login and JWT
// verification for the household accounts.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"golang.org/x/crypto/bcrypt"

	"github.com/EduardoMirandaz/sabrinator/internal/authstore"
	"github.com/EduardoMirandaz/sabrinator/internal/config"
	"github.com/EduardoMirandaz/sabrinator/internal/model"
)

var (
	// ErrInvalidCredentials covers unknown usernames and bad passwords alike.
	ErrInvalidCredentials = eris.New("auth: invalid credentials")
	// ErrInvalidInvite covers unknown, expired and exhausted invites.
	ErrInvalidInvite = eris.New("auth: invalid invite")
	// ErrInvalidToken covers malformed, expired and mis-signed tokens.
	ErrInvalidToken = eris.New("auth: invalid token")
)

// Claims is the JWT payload.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Service issues and verifies tokens and manages the invite lifecycle.
type Service struct {
	store authstore.Store
	cfg   config.AuthConfig
	tz    *time.Location
	now   func() time.Time
}

// New creates the auth service.
func New(store authstore.Store, cfg config.AuthConfig, tz *time.Location) *Service {
	s := &Service{store: store, cfg: cfg, tz: tz}
	s.now = func() time.Time { return time.Now().In(tz) }
	return s
}

// CreateInvite mints a registration token valid for expiresHours.
func (s *Service) CreateInvite(ctx context.Context, maxUses, expiresHours int) (*model.Invite, error) {
	if maxUses <= 0 {
		maxUses = 1
	}
	if expiresHours <= 0 {
		expiresHours = 24
	}
	inv := model.Invite{
		Token:     uuid.New().String(),
		ExpiresAt: s.now().Add(time.Duration(expiresHours) * time.Hour),
		MaxUses:   maxUses,
	}
	if err := s.store.CreateInvite(ctx, inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// ValidateInvite reports whether token can still be used and when it expires.
func (s *Service) ValidateInvite(ctx context.Context, token string) (bool, *time.Time) {
	inv, err := s.store.GetInvite(ctx, token)
	if err != nil {
		return false, nil
	}
	valid := inv.ExpiresAt.After(s.now()) && inv.Uses < inv.MaxUses
	return valid, &inv.ExpiresAt
}

// Register creates a user through a valid invite. Historical field limits
// are kept: name 30, phone 20, password 30 characters.
func (s *Service) Register(ctx context.Context, inviteToken, username, name, phone, password string) (*model.User, error) {
	inv, err := s.store.GetInvite(ctx, inviteToken)
	if err != nil {
		return nil, ErrInvalidInvite
	}
	if inv.Uses >= inv.MaxUses || inv.ExpiresAt.Before(s.now()) {
		return nil, ErrInvalidInvite
	}

	hash, err := hashPassword(truncate(password, 30))
	if err != nil {
		return nil, err
	}
	user := model.User{
		ID:           uuid.New().String(),
		Username:     username,
		Role:         model.RoleUser,
		Name:         truncate(name, 30),
		Phone:        truncate(phone, 20),
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	if err := s.store.ConsumeInvite(ctx, inviteToken); err != nil {
		return nil, err
	}
	return &user, nil
}

// Login verifies credentials and returns a signed token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	if !verifyPassword(truncate(password, 30), user.PasswordHash) {
		return "", ErrInvalidCredentials
	}
	return s.issueToken(user)
}

// Verify parses a bearer token and loads the user behind it.
func (s *Service) Verify(ctx context.Context, tokenString string) (*model.User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, eris.Errorf("auth: unexpected signing method %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return user, nil
}

// EnsureAdmin creates the bootstrap admin account if it does not exist.
// Idempotent; an existing account is left untouched.
func (s *Service) EnsureAdmin(ctx context.Context) (*model.User, error) {
	if user, err := s.store.GetUserByUsername(ctx, s.cfg.AdminUsername); err == nil {
		return user, nil
	}
	hash, err := hashPassword(truncate(s.cfg.AdminPassword, 30))
	if err != nil {
		return nil, err
	}
	user := model.User{
		ID:           uuid.New().String(),
		Username:     s.cfg.AdminUsername,
		Role:         model.RoleAdmin,
		Name:         truncate(s.cfg.AdminName, 30),
		Phone:        truncate(s.cfg.AdminPhone, 20),
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if eris.Is(err, authstore.ErrDuplicateUser) {
			return s.store.GetUserByUsername(ctx, s.cfg.AdminUsername)
		}
		return nil, err
	}
	return &user, nil
}

func (s *Service) issueToken(user *model.User) (string, error) {
	now := s.now()
	claims := Claims{
		Username: user.Username,
		Role:     string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.cfg.TokenTTLHours) * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", eris.Wrap(err, "auth: sign token")
	}
	return signed, nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", eris.Wrap(err, "auth: hash password")
	}
	return string(hash), nil
}

// verifyPassword checks bcrypt first and falls back to the legacy unsalted
// sha256 scheme so accounts imported from the old user file keep working.
func verifyPassword(password, hash string) bool {
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil {
		return true
	}
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]) == hash
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
