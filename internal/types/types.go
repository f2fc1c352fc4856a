// Package types provides shared type definitions used across nestling packages.
// This package exists to break import cycles between store, server, and the
// terminal client. Types in this package should be foundational data
// structures with no complex dependencies.
package types

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// RECORD TYPES
// =============================================================================

// RecordType identifies the kind of baby event a record describes.
type RecordType string

const (
	RecordFeeding     RecordType = "feeding"
	RecordDiaper      RecordType = "diaper"
	RecordSleep       RecordType = "sleep"
	RecordSolid       RecordType = "solid"
	RecordMeasurement RecordType = "measurement"
	RecordSnapshot    RecordType = "snapshot"
)

// AllRecordTypes lists every valid record type, in display order.
var AllRecordTypes = []RecordType{
	RecordFeeding,
	RecordDiaper,
	RecordSleep,
	RecordSolid,
	RecordMeasurement,
	RecordSnapshot,
}

// Valid reports whether t is a known record type.
func (t RecordType) Valid() bool {
	switch t {
	case RecordFeeding, RecordDiaper, RecordSleep, RecordSolid, RecordMeasurement, RecordSnapshot:
		return true
	}
	return false
}

// Feeding methods.
const (
	FeedingBreast  = "breast"
	FeedingBottle  = "bottle"
	FeedingFormula = "formula"
)

// Diaper kinds.
const (
	DiaperWet   = "wet"
	DiaperDirty = "dirty"
	DiaperMixed = "mixed"
)

// Solid-food reactions.
const (
	ReactionLiked    = "liked"
	ReactionNeutral  = "neutral"
	ReactionDisliked = "disliked"
	ReactionAllergic = "allergic"
)

// Record is a single logged baby event. The populated payload fields depend
// on Type; everything else is shared metadata. Unused payload fields stay at
// their zero value and are omitted on the wire.
type Record struct {
	ID         string     `json:"id"`
	BabyID     string     `json:"baby_id"`
	Type       RecordType `json:"type"`
	HappenedAt time.Time  `json:"happened_at"`
	Note       string     `json:"note,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	CreatedBy  string     `json:"created_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// feeding
	Method      string  `json:"method,omitempty"`
	Side        string  `json:"side,omitempty"`
	AmountML    float64 `json:"amount_ml,omitempty"`
	DurationMin float64 `json:"duration_min,omitempty"`

	// diaper
	Kind string `json:"kind,omitempty"`

	// sleep
	EndedAt *time.Time `json:"ended_at,omitempty"`

	// solid
	Food     string `json:"food,omitempty"`
	Amount   string `json:"amount,omitempty"`
	Reaction string `json:"reaction,omitempty"`

	// measurement
	HeightCM float64 `json:"height_cm,omitempty"`
	WeightKG float64 `json:"weight_kg,omitempty"`
	HeadCM   float64 `json:"head_cm,omitempty"`

	// snapshot
	ImageURL string `json:"image_url,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// Validate checks the record's shared fields plus the payload fields that
// its type requires. It does not touch ID or the server-assigned timestamps.
func (r *Record) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("unknown record type %q", r.Type)
	}
	if r.BabyID == "" {
		return fmt.Errorf("record missing baby_id")
	}
	if r.HappenedAt.IsZero() {
		return fmt.Errorf("record missing happened_at")
	}

	switch r.Type {
	case RecordFeeding:
		switch r.Method {
		case FeedingBreast, FeedingBottle, FeedingFormula:
		default:
			return fmt.Errorf("feeding: unknown method %q", r.Method)
		}
		if r.Method != FeedingBreast && r.AmountML <= 0 {
			return fmt.Errorf("feeding: amount_ml must be positive for %s feeds", r.Method)
		}
		if r.DurationMin < 0 {
			return fmt.Errorf("feeding: negative duration")
		}
	case RecordDiaper:
		switch r.Kind {
		case DiaperWet, DiaperDirty, DiaperMixed:
		default:
			return fmt.Errorf("diaper: unknown kind %q", r.Kind)
		}
	case RecordSleep:
		if r.EndedAt != nil && !r.EndedAt.After(r.HappenedAt) {
			return fmt.Errorf("sleep: ended_at must be after happened_at")
		}
	case RecordSolid:
		if strings.TrimSpace(r.Food) == "" {
			return fmt.Errorf("solid: food is required")
		}
		switch r.Reaction {
		case "", ReactionLiked, ReactionNeutral, ReactionDisliked, ReactionAllergic:
		default:
			return fmt.Errorf("solid: unknown reaction %q", r.Reaction)
		}
	case RecordMeasurement:
		if r.HeightCM <= 0 && r.WeightKG <= 0 && r.HeadCM <= 0 {
			return fmt.Errorf("measurement: at least one of height_cm, weight_kg, head_cm required")
		}
		if r.HeightCM < 0 || r.WeightKG < 0 || r.HeadCM < 0 {
			return fmt.Errorf("measurement: negative value")
		}
	case RecordSnapshot:
		if r.ImageURL == "" {
			return fmt.Errorf("snapshot: image_url is required")
		}
	}
	return nil
}

// ParseTags turns comma-separated user input into a clean tag list:
// trimmed, lowercased, empty entries dropped, duplicates removed,
// original order preserved.
func ParseTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	seen := make(map[string]bool)
	var tags []string
	for _, part := range strings.Split(raw, ",") {
		tag := strings.ToLower(strings.TrimSpace(part))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

// =============================================================================
// GROWTH / CHART SHAPING
// =============================================================================

// YearMonth is the chart grouping key extracted from a record timestamp.
type YearMonth struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// YearMonthOf extracts the grouping key from a timestamp (UTC).
func YearMonthOf(t time.Time) YearMonth {
	u := t.UTC()
	return YearMonth{Year: u.Year(), Month: int(u.Month())}
}

// String renders the key as "2026-03".
func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, ym.Month)
}

// GrowthPoint is one chart sample: the latest measurement values seen in a
// given month, with the baby's age at the sample time.
type GrowthPoint struct {
	YearMonth YearMonth `json:"year_month"`
	AgeMonths int       `json:"age_months"`
	HeightCM  float64   `json:"height_cm,omitempty"`
	WeightKG  float64   `json:"weight_kg,omitempty"`
	HeadCM    float64   `json:"head_cm,omitempty"`
	SampledAt time.Time `json:"sampled_at"`
}

// =============================================================================
// PROFILE / HOUSEHOLD / AUTH
// =============================================================================

// BabyProfile is the shared per-baby profile document.
type BabyProfile struct {
	BabyID      string    `json:"baby_id"`
	HouseholdID string    `json:"household_id"`
	Name        string    `json:"name"`
	BirthDate   time.Time `json:"birth_date"`
	Sex         string    `json:"sex,omitempty"` // "f", "m" or empty
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Note        string    `json:"note,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AgeAt returns the baby's age at t, in whole months and leftover days.
func (p *BabyProfile) AgeAt(t time.Time) (months, days int) {
	if p.BirthDate.IsZero() || t.Before(p.BirthDate) {
		return 0, 0
	}
	b, u := p.BirthDate.UTC(), t.UTC()
	months = (u.Year()-b.Year())*12 + int(u.Month()) - int(b.Month())
	anchor := b.AddDate(0, months, 0)
	if anchor.After(u) {
		months--
		anchor = b.AddDate(0, months, 0)
	}
	days = int(u.Sub(anchor).Hours() / 24)
	return months, days
}

// AgeMonthsAt is AgeAt truncated to whole months.
func (p *BabyProfile) AgeMonthsAt(t time.Time) int {
	m, _ := p.AgeAt(t)
	return m
}

// Household groups the users who share one or more baby profiles.
type Household struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	InviteCode string    `json:"invite_code"`
	CreatedAt  time.Time `json:"created_at"`
}

// User is an account that belongs to exactly one household.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name,omitempty"`
	HouseholdID  string    `json:"household_id"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is an opaque bearer token with an expiry.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
