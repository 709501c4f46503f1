package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"scoreboard/internal/identity"
	"scoreboard/internal/server/storage"

	"github.com/google/uuid"
	"github.com/lixenwraith/auth"
)

var (
	ErrStorageDisabled = errors.New("storage disabled")
	ErrSessionRevoked  = errors.New("session revoked")
)

// User represents a registered operator account
type User struct {
	UserID    string
	Username  string
	Email     string
	CreatedAt time.Time
}

// Identity is the signed-in view of a user
func (u *User) Identity() *identity.Identity {
	return &identity.Identity{UID: u.UserID, Email: u.Email}
}

func userFromRecord(r *storage.UserRecord) *User {
	return &User{UserID: r.UserID, Username: r.Username, Email: r.Email, CreatedAt: r.CreatedAt}
}

// Token is an issued bearer token and the session backing it
type Token struct {
	Value     string
	SessionID string
	ExpiresAt time.Time
}

// CreateUser hashes the password and inserts the account
func (s *Service) CreateUser(username, email, password string) (*User, error) {
	if s.sql == nil {
		return nil, ErrStorageDisabled
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		UserID:    uuid.New().String(),
		Username:  username,
		Email:     email,
		CreatedAt: s.now().UTC(),
	}
	record := storage.UserRecord{
		UserID:       user.UserID,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    user.CreatedAt,
	}
	if err := s.sql.CreateUser(record); err != nil {
		return nil, err
	}

	s.log.Info("user created", "user", user.UserID, "username", username)
	return user, nil
}

// AuthenticateUser verifies credentials given a username or an email
func (s *Service) AuthenticateUser(identifier, password string) (*User, error) {
	if s.sql == nil {
		return nil, ErrStorageDisabled
	}

	var (
		record *storage.UserRecord
		err    error
	)
	if strings.Contains(identifier, "@") {
		record, err = s.sql.GetUserByEmail(identifier)
	} else {
		record, err = s.sql.GetUserByUsername(identifier)
	}
	if err != nil {
		// Always hash to keep timing uniform
		auth.HashPassword(password)
		return nil, identity.ErrInvalidCredentials
	}

	if err := auth.VerifyPassword(password, record.PasswordHash); err != nil {
		return nil, identity.ErrInvalidCredentials
	}
	return userFromRecord(record), nil
}

// UpdateLastLogin stamps a successful sign-in
func (s *Service) UpdateLastLogin(userID string) error {
	if s.sql == nil {
		return ErrStorageDisabled
	}
	return s.sql.UpdateUserLastLogin(userID, s.now().UTC())
}

func (s *Service) GetUserByID(userID string) (*User, error) {
	if s.sql == nil {
		return nil, ErrStorageDisabled
	}
	record, err := s.sql.GetUserByID(userID)
	if err != nil {
		return nil, fmt.Errorf("user not found")
	}
	return userFromRecord(record), nil
}

// GenerateUserToken opens a session and signs a token carrying its id
func (s *Service) GenerateUserToken(userID string) (*Token, error) {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session := storage.SessionRecord{
		SessionID: uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.tokenTTL),
	}
	if err := s.sql.CreateSession(session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	claims := map[string]any{
		"username": user.Username,
		"email":    user.Email,
		"sid":      session.SessionID,
	}
	value, err := auth.GenerateHS256Token(s.secret, userID, claims, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &Token{Value: value, SessionID: session.SessionID, ExpiresAt: session.ExpiresAt}, nil
}

// ValidateToken verifies the signature and that the session is still open
func (s *Service) ValidateToken(token string) (string, map[string]any, error) {
	userID, claims, err := auth.ValidateHS256Token(s.secret, token)
	if err != nil {
		return "", nil, err
	}
	if s.sql == nil {
		return "", nil, ErrStorageDisabled
	}
	sid, _ := claims["sid"].(string)
	if sid == "" {
		return "", nil, ErrSessionRevoked
	}
	ok, err := s.sql.IsSessionValid(sid)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, ErrSessionRevoked
	}
	return userID, claims, nil
}

// Logout closes one session; its token stops validating immediately
func (s *Service) Logout(sessionID string) error {
	if s.sql == nil {
		return ErrStorageDisabled
	}
	return s.sql.DeleteSession(sessionID)
}
