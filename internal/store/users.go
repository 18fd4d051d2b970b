package store

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"

	"github.com/seenimoa/scripdesk/pkg/models"
)

// ErrInvalidCredentials is returned for a bad username/password pair. It is
// deliberately the same for unknown users and wrong passwords.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrSessionExpired is returned for missing or expired session tokens.
var ErrSessionExpired = errors.New("session expired")

// sessionTTL is how long a login token stays valid.
const sessionTTL = 24 * time.Hour

// hashPassword returns the SHA-256 hex digest of a password.
func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// RegisterUser creates a new account. Usernames are case-insensitive and
// must be unique.
func (s *Store) RegisterUser(username, email, password string) (*models.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return nil, fmt.Errorf("username and password are required")
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: hashPassword(password),
		CreatedAt:    time.Now(),
	}
	if err := s.db.Insert(user.ID, user); err != nil {
		if errors.Is(err, badgerhold.ErrUniqueExists) {
			return nil, fmt.Errorf("username %s: %w", username, ErrDuplicate)
		}
		return nil, fmt.Errorf("register user: %w", err)
	}
	return user, nil
}

// VerifyCredentials checks a username/password pair and returns the user.
func (s *Store) VerifyCredentials(username, password string) (*models.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	var user models.User
	err := s.db.FindOne(&user, badgerhold.Where("Username").Eq(username))
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	want := []byte(user.PasswordHash)
	got := []byte(hashPassword(password))
	if subtle.ConstantTimeCompare(want, got) != 1 {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// GetUser returns a user by id.
func (s *Store) GetUser(id string) (*models.User, error) {
	var user models.User
	if err := s.db.Get(id, &user); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UserSession is a persisted login token.
type UserSession struct {
	Token     string    `badgerhold:"key"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateSession issues a new login token for a user.
func (s *Store) CreateSession(userID string) (*UserSession, error) {
	sess := &UserSession{
		Token:     uuid.New().String(),
		UserID:    userID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(sessionTTL),
	}
	if err := s.db.Insert(sess.Token, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// SessionUser resolves a token to its user, rejecting expired tokens.
func (s *Store) SessionUser(token string) (*models.User, error) {
	var sess UserSession
	if err := s.db.Get(token, &sess); err != nil {
		return nil, ErrSessionExpired
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = s.db.Delete(token, UserSession{})
		return nil, ErrSessionExpired
	}
	return s.GetUser(sess.UserID)
}

// DeleteSession logs a token out. Unknown tokens are not an error.
func (s *Store) DeleteSession(token string) error {
	err := s.db.Delete(token, UserSession{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil
	}
	return err
}
