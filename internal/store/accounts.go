package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"nestling/internal/logging"
	"nestling/internal/types"
)

// =============================================================================
// HOUSEHOLDS
// =============================================================================

// CreateHousehold inserts a new household with a fresh invite code.
func (s *Store) CreateHousehold(name string) (*types.Household, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("household name required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h := &types.Household{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(name),
		InviteCode: newInviteCode(),
		CreatedAt:  time.Now().UTC(),
	}

	_, err := s.db.Exec(
		"INSERT INTO households (id, name, invite_code, created_at) VALUES (?, ?, ?, ?)",
		h.ID, h.Name, h.InviteCode, h.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create household: %w", err)
	}

	logging.Auth("Household created: id=%s name=%s", h.ID, h.Name)
	return h, nil
}

// GetHousehold fetches a household by ID.
func (s *Store) GetHousehold(id string) (*types.Household, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanHousehold("SELECT id, name, invite_code, created_at FROM households WHERE id = ?", id)
}

// GetHouseholdByInvite fetches a household by invite code.
func (s *Store) GetHouseholdByInvite(code string) (*types.Household, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanHousehold("SELECT id, name, invite_code, created_at FROM households WHERE invite_code = ?", code)
}

func (s *Store) scanHousehold(query string, arg interface{}) (*types.Household, error) {
	var h types.Household
	err := s.db.QueryRow(query, arg).Scan(&h.ID, &h.Name, &h.InviteCode, &h.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("household: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch household: %w", err)
	}
	h.CreatedAt = h.CreatedAt.UTC()
	return &h, nil
}

// invite codes are short uuid prefixes; collisions are guarded by the
// unique index and retried by callers in practice never.
func newInviteCode() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// =============================================================================
// USERS
// =============================================================================

// CreateUser inserts a new user. Email must be unique.
func (s *Store) CreateUser(email, displayName, householdID, passwordHash string) (*types.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email %q", email)
	}
	if householdID == "" {
		return nil, fmt.Errorf("household id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM users WHERE email = ?", email).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists > 0 {
		return nil, fmt.Errorf("user %s: %w", email, ErrDuplicate)
	}

	u := &types.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		HouseholdID:  householdID,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO users (id, email, display_name, household_id, password_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.DisplayName, u.HouseholdID, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logging.Auth("User created: id=%s email=%s household=%s", u.ID, u.Email, u.HouseholdID)
	return u, nil
}

// GetUser fetches a user by ID.
func (s *Store) GetUser(id string) (*types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanUser("WHERE id = ?", id)
}

// GetUserByEmail fetches a user by email (case-insensitive).
func (s *Store) GetUserByEmail(email string) (*types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanUser("WHERE email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) scanUser(where string, arg interface{}) (*types.User, error) {
	var u types.User
	err := s.db.QueryRow(
		"SELECT id, email, display_name, household_id, password_hash, created_at FROM users "+where,
		arg,
	).Scan(&u.ID, &u.Email, &u.DisplayName, &u.HouseholdID, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

// ListHouseholdUsers returns all members of a household.
func (s *Store) ListHouseholdUsers(householdID string) ([]*types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT id, email, display_name, household_id, password_hash, created_at FROM users WHERE household_id = ? ORDER BY created_at",
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*types.User
	for rows.Next() {
		var u types.User
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.HouseholdID, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, &u)
	}
	return users, rows.Err()
}

// =============================================================================
// SESSIONS
// =============================================================================

// CreateSession issues a new opaque session token for a user.
func (s *Store) CreateSession(userID string, ttl time.Duration) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	sess := &types.Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	_, err := s.db.Exec(
		"INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		sess.Token, sess.UserID, sess.CreatedAt, sess.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	logging.AuthDebug("Session created: user=%s expires=%s", userID, sess.ExpiresAt)
	return sess, nil
}

// GetSession fetches a session by token. Expired sessions are treated as
// missing and deleted opportunistically.
func (s *Store) GetSession(token string) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sess types.Session
	err := s.db.QueryRow(
		"SELECT token, user_id, created_at, expires_at FROM sessions WHERE token = ?",
		token,
	).Scan(&sess.Token, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}

	if sess.Expired(time.Now().UTC()) {
		_, _ = s.db.Exec("DELETE FROM sessions WHERE token = ?", token)
		return nil, fmt.Errorf("session expired: %w", ErrNotFound)
	}

	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	return &sess, nil
}

// DeleteSession revokes a session token (logout).
func (s *Store) DeleteSession(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM sessions WHERE token = ?", token)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// PurgeExpiredSessions removes all expired sessions and returns the count.
func (s *Store) PurgeExpiredSessions() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM sessions WHERE expires_at <= ?", time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.AuthDebug("Purged %d expired sessions", n)
	}
	return int(n), nil
}
