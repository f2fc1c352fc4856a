package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"nestling/internal/logging"
	"nestling/internal/types"
)

// =============================================================================
// RECORD CRUD
// =============================================================================

// recordColumns is the scan order shared by every record query.
const recordColumns = `id, baby_id, type, happened_at, note, tags, created_by,
	created_at, updated_at, method, side, amount_ml, duration_min, kind,
	ended_at, food, amount, reaction, height_cm, weight_kg, head_cm,
	image_url, caption`

// ListOptions compose the filter/sort/pagination clauses for ListRecords.
// Zero values mean "no constraint".
type ListOptions struct {
	BabyID string
	Type   types.RecordType
	From   time.Time
	To     time.Time
	Tag    string // match records carrying this tag
	Asc    bool   // sort happened_at ascending; default newest first
	Limit  int
	Offset int
}

// AddRecord validates the record, assigns an ID and timestamps, and inserts it.
// The assigned ID is set on the passed record and returned.
func (s *Store) AddRecord(rec *types.Record) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", fmt.Errorf("invalid record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = uuid.NewString()
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	logging.StoreDebug("Adding record: id=%s baby=%s type=%s", rec.ID, rec.BabyID, rec.Type)

	_, err := s.db.Exec(
		`INSERT INTO records (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		insertArgs(rec)...,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to insert record %s: %v", rec.ID, err)
		return "", fmt.Errorf("failed to insert record: %w", err)
	}

	logging.Store("Record added: id=%s baby=%s type=%s", rec.ID, rec.BabyID, rec.Type)
	return rec.ID, nil
}

// UpdateRecord replaces the stored payload of the record with the same ID.
// CreatedAt and CreatedBy are preserved; UpdatedAt is bumped. The record
// type cannot change.
func (s *Store) UpdateRecord(rec *types.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("update: %w", ErrNotFound)
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var existingType string
	err := s.db.QueryRow("SELECT type FROM records WHERE id = ?", rec.ID).Scan(&existingType)
	if err == sql.ErrNoRows {
		return fmt.Errorf("update record %s: %w", rec.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up record: %w", err)
	}
	if existingType != string(rec.Type) {
		return fmt.Errorf("update record %s: type cannot change from %s to %s", rec.ID, existingType, rec.Type)
	}

	rec.UpdatedAt = time.Now().UTC()

	logging.StoreDebug("Updating record: id=%s type=%s", rec.ID, rec.Type)

	_, err = s.db.Exec(
		`UPDATE records SET
			happened_at = ?, note = ?, tags = ?, updated_at = ?,
			method = ?, side = ?, amount_ml = ?, duration_min = ?,
			kind = ?, ended_at = ?, food = ?, amount = ?, reaction = ?,
			height_cm = ?, weight_kg = ?, head_cm = ?, image_url = ?, caption = ?
		 WHERE id = ?`,
		rec.HappenedAt.UTC(), rec.Note, marshalTags(rec.Tags), rec.UpdatedAt,
		rec.Method, rec.Side, rec.AmountML, rec.DurationMin,
		rec.Kind, nullTime(rec.EndedAt), rec.Food, rec.Amount, rec.Reaction,
		rec.HeightCM, rec.WeightKG, rec.HeadCM, rec.ImageURL, rec.Caption,
		rec.ID,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to update record %s: %v", rec.ID, err)
		return fmt.Errorf("failed to update record: %w", err)
	}

	logging.Store("Record updated: id=%s", rec.ID)
	return nil
}

// DeleteRecord removes a record by ID.
func (s *Store) DeleteRecord(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM records WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete record %s: %w", id, ErrNotFound)
	}

	logging.Store("Record deleted: id=%s", id)
	return nil
}

// GetRecord fetches a single record by ID.
func (s *Store) GetRecord(id string) (*types.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow("SELECT "+recordColumns+" FROM records WHERE id = ?", id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch record: %w", err)
	}
	return rec, nil
}

// ListRecords fetches records matching the given options. Default sort is
// happened_at descending (newest first).
func (s *Store) ListRecords(opts ListOptions) ([]*types.Record, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ListRecords")
	defer timer.Stop()

	if opts.BabyID == "" {
		return nil, fmt.Errorf("list records: baby id required")
	}
	if !opts.From.IsZero() && !opts.To.IsZero() && opts.From.After(opts.To) {
		return nil, fmt.Errorf("list records: from is after to")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	where := []string{"baby_id = ?"}
	args := []interface{}{opts.BabyID}

	if opts.Type != "" {
		if !opts.Type.Valid() {
			return nil, fmt.Errorf("list records: unknown type %q", opts.Type)
		}
		where = append(where, "type = ?")
		args = append(args, string(opts.Type))
	}
	if !opts.From.IsZero() {
		where = append(where, "happened_at >= ?")
		args = append(args, opts.From.UTC())
	}
	if !opts.To.IsZero() {
		where = append(where, "happened_at < ?")
		args = append(args, opts.To.UTC())
	}

	order := "DESC"
	if opts.Asc {
		order = "ASC"
	}

	query := "SELECT " + recordColumns + " FROM records WHERE " +
		strings.Join(where, " AND ") +
		" ORDER BY happened_at " + order

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	// With a tag filter, pagination must apply to the filtered result, so
	// the SQL limit is deferred until after the tag pass.
	if opts.Tag == "" {
		query += " LIMIT ?"
		args = append(args, limit)
		if opts.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to list records for %s: %v", opts.BabyID, err)
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records, err := collectRecords(rows)
	if err != nil {
		return nil, err
	}

	// Tag filtering happens outside the query: tags live in a JSON column,
	// and record volume per baby stays small.
	if opts.Tag != "" {
		tag := strings.ToLower(strings.TrimSpace(opts.Tag))
		filtered := records[:0]
		for _, r := range records {
			for _, t := range r.Tags {
				if t == tag {
					filtered = append(filtered, r)
					break
				}
			}
		}
		records = filtered

		if opts.Offset > 0 {
			if opts.Offset >= len(records) {
				records = nil
			} else {
				records = records[opts.Offset:]
			}
		}
		if len(records) > limit {
			records = records[:limit]
		}
	}

	logging.StoreDebug("Listed %d records: baby=%s type=%s", len(records), opts.BabyID, opts.Type)
	return records, nil
}

// GetSnapshots returns snapshot records newest first, optionally filtered by
// tag, with limit/offset pagination.
func (s *Store) GetSnapshots(babyID, tag string, limit, offset int) ([]*types.Record, error) {
	return s.ListRecords(ListOptions{
		BabyID: babyID,
		Type:   types.RecordSnapshot,
		Tag:    tag,
		Limit:  limit,
		Offset: offset,
	})
}

// GetMeasurementRecords returns measurement records ascending by happened_at,
// optionally restricted to samples at or after since.
func (s *Store) GetMeasurementRecords(babyID string, since time.Time) ([]*types.Record, error) {
	return s.ListRecords(ListOptions{
		BabyID: babyID,
		Type:   types.RecordMeasurement,
		From:   since,
		Asc:    true,
		Limit:  10000,
	})
}

// CountSnapshotsWithImage returns how many snapshot records reference the
// given image URL. Used for garbage collection of stored images.
func (s *Store) CountSnapshotsWithImage(imageURL string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM records WHERE type = ? AND image_url = ?",
		string(types.RecordSnapshot), imageURL,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}

// =============================================================================
// GROWTH SHAPING
// =============================================================================

// GrowthSeries folds measurement records into one chart point per
// year/month: the latest non-zero height/weight/head value seen in that
// month, with the baby's age at the sample time.
func (s *Store) GrowthSeries(babyID string, birthDate time.Time) ([]types.GrowthPoint, error) {
	timer := logging.StartTimer(logging.CategoryStore, "GrowthSeries")
	defer timer.Stop()

	measurements, err := s.GetMeasurementRecords(babyID, time.Time{})
	if err != nil {
		return nil, err
	}

	profile := types.BabyProfile{BirthDate: birthDate}
	var series []types.GrowthPoint
	byKey := make(map[types.YearMonth]int)

	for _, m := range measurements {
		key := types.YearMonthOf(m.HappenedAt)
		idx, ok := byKey[key]
		if !ok {
			series = append(series, types.GrowthPoint{YearMonth: key})
			idx = len(series) - 1
			byKey[key] = idx
		}
		pt := &series[idx]
		// Records arrive ascending, so later samples win within a month.
		if m.HeightCM > 0 {
			pt.HeightCM = m.HeightCM
		}
		if m.WeightKG > 0 {
			pt.WeightKG = m.WeightKG
		}
		if m.HeadCM > 0 {
			pt.HeadCM = m.HeadCM
		}
		pt.SampledAt = m.HappenedAt
		pt.AgeMonths = profile.AgeMonthsAt(m.HappenedAt)
	}

	logging.StoreDebug("Growth series: baby=%s points=%d from %d measurements",
		babyID, len(series), len(measurements))
	return series, nil
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*types.Record, error) {
	var rec types.Record
	var tagsJSON string
	var endedAt sql.NullTime

	err := row.Scan(
		&rec.ID, &rec.BabyID, &rec.Type, &rec.HappenedAt, &rec.Note, &tagsJSON,
		&rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt,
		&rec.Method, &rec.Side, &rec.AmountML, &rec.DurationMin, &rec.Kind,
		&endedAt, &rec.Food, &rec.Amount, &rec.Reaction,
		&rec.HeightCM, &rec.WeightKG, &rec.HeadCM, &rec.ImageURL, &rec.Caption,
	)
	if err != nil {
		return nil, err
	}

	if endedAt.Valid {
		t := endedAt.Time.UTC()
		rec.EndedAt = &t
	}
	rec.HappenedAt = rec.HappenedAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	rec.Tags = unmarshalTags(tagsJSON)
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]*types.Record, error) {
	var records []*types.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return records, nil
}

func insertArgs(rec *types.Record) []interface{} {
	return []interface{}{
		rec.ID, rec.BabyID, string(rec.Type), rec.HappenedAt.UTC(), rec.Note,
		marshalTags(rec.Tags), rec.CreatedBy, rec.CreatedAt, rec.UpdatedAt,
		rec.Method, rec.Side, rec.AmountML, rec.DurationMin, rec.Kind,
		nullTime(rec.EndedAt), rec.Food, rec.Amount, rec.Reaction,
		rec.HeightCM, rec.WeightKG, rec.HeadCM, rec.ImageURL, rec.Caption,
	}
}

func marshalTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func unmarshalTags(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
