package storage

import (
	"time"
)

// CreateSession records a newly issued token; a user may hold several
func (s *Store) CreateSession(record SessionRecord) error {
	query := `INSERT INTO sessions (session_id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.Exec(query, record.SessionID, record.UserID, record.CreatedAt, record.ExpiresAt)
	return err
}

// DeleteSession signs a single token out
func (s *Store) DeleteSession(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID)
	return err
}

// DeleteSessionsByUserID signs every token of a user out
func (s *Store) DeleteSessionsByUserID(userID string) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteExpiredSessions removes sessions past expiry
func (s *Store) DeleteExpiredSessions() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// IsSessionValid checks the session exists and has not expired
func (s *Store) IsSessionValid(sessionID string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM sessions WHERE session_id = ? AND expires_at > ?`
	if err := s.db.QueryRow(query, sessionID, time.Now().UTC()).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
