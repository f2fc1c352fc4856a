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
// BABY PROFILES
// =============================================================================

// CreateBaby inserts a new baby profile into a household and returns it.
func (s *Store) CreateBaby(householdID, name string, birthDate time.Time, sex string) (*types.BabyProfile, error) {
	if householdID == "" {
		return nil, fmt.Errorf("household id required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("baby name required")
	}
	if birthDate.IsZero() {
		return nil, fmt.Errorf("birth date required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := &types.BabyProfile{
		BabyID:      uuid.NewString(),
		HouseholdID: householdID,
		Name:        strings.TrimSpace(name),
		BirthDate:   birthDate.UTC(),
		Sex:         sex,
		UpdatedAt:   time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO baby_profiles (baby_id, household_id, name, birth_date, sex, avatar_url, note, updated_at)
		 VALUES (?, ?, ?, ?, ?, '', '', ?)`,
		p.BabyID, p.HouseholdID, p.Name, p.BirthDate, p.Sex, p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create baby profile: %w", err)
	}

	logging.Store("Baby profile created: id=%s household=%s name=%s", p.BabyID, householdID, p.Name)
	return p, nil
}

// GetProfile fetches the profile document for a baby.
func (s *Store) GetProfile(babyID string) (*types.BabyProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p types.BabyProfile
	err := s.db.QueryRow(
		`SELECT baby_id, household_id, name, birth_date, sex, avatar_url, note, updated_at
		 FROM baby_profiles WHERE baby_id = ?`,
		babyID,
	).Scan(&p.BabyID, &p.HouseholdID, &p.Name, &p.BirthDate, &p.Sex, &p.AvatarURL, &p.Note, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("profile %s: %w", babyID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}

	p.BirthDate = p.BirthDate.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// UpdateProfile replaces the mutable fields of a baby profile. HouseholdID
// cannot change; UpdatedAt is bumped.
func (s *Store) UpdateProfile(p *types.BabyProfile) error {
	if p.BabyID == "" {
		return fmt.Errorf("update profile: %w", ErrNotFound)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("baby name required")
	}
	if p.BirthDate.IsZero() {
		return fmt.Errorf("birth date required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p.UpdatedAt = time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE baby_profiles SET name = ?, birth_date = ?, sex = ?, avatar_url = ?, note = ?, updated_at = ?
		 WHERE baby_id = ?`,
		strings.TrimSpace(p.Name), p.BirthDate.UTC(), p.Sex, p.AvatarURL, p.Note, p.UpdatedAt, p.BabyID,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update profile %s: %w", p.BabyID, ErrNotFound)
	}

	logging.Store("Baby profile updated: id=%s", p.BabyID)
	return nil
}

// ListBabies returns every baby profile in a household, oldest first.
func (s *Store) ListBabies(householdID string) ([]*types.BabyProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT baby_id, household_id, name, birth_date, sex, avatar_url, note, updated_at
		 FROM baby_profiles WHERE household_id = ? ORDER BY birth_date`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list babies: %w", err)
	}
	defer rows.Close()

	var babies []*types.BabyProfile
	for rows.Next() {
		var p types.BabyProfile
		if err := rows.Scan(&p.BabyID, &p.HouseholdID, &p.Name, &p.BirthDate, &p.Sex, &p.AvatarURL, &p.Note, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		p.BirthDate = p.BirthDate.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		babies = append(babies, &p)
	}
	return babies, rows.Err()
}

// ListAllBabies returns every baby profile in the database, oldest first.
// Used by local admin and quick-log commands that run on the host itself.
func (s *Store) ListAllBabies() ([]*types.BabyProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT baby_id, household_id, name, birth_date, sex, avatar_url, note, updated_at
		 FROM baby_profiles ORDER BY birth_date`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list babies: %w", err)
	}
	defer rows.Close()

	var babies []*types.BabyProfile
	for rows.Next() {
		var p types.BabyProfile
		if err := rows.Scan(&p.BabyID, &p.HouseholdID, &p.Name, &p.BirthDate, &p.Sex, &p.AvatarURL, &p.Note, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		p.BirthDate = p.BirthDate.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		babies = append(babies, &p)
	}
	return babies, rows.Err()
}

// BabyInHousehold reports whether the baby belongs to the household. Every
// authorized record/profile/image operation funnels through this check.
func (s *Store) BabyInHousehold(babyID, householdID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM baby_profiles WHERE baby_id = ? AND household_id = ?",
		babyID, householdID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check household membership: %w", err)
	}
	return n > 0, nil
}
