package types

import (
	"testing"
	"time"
)

func validFeeding() Record {
	return Record{
		BabyID:     "baby-1",
		Type:       RecordFeeding,
		HappenedAt: time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC),
		Method:     FeedingBottle,
		AmountML:   120,
	}
}

func TestRecordValidate(t *testing.T) {
	ended := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	badEnd := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		mutate  func(*Record)
		wantErr bool
	}{
		{"valid bottle feeding", func(r *Record) {}, false},
		{"unknown type", func(r *Record) { r.Type = "bath" }, true},
		{"missing baby", func(r *Record) { r.BabyID = "" }, true},
		{"missing timestamp", func(r *Record) { r.HappenedAt = time.Time{} }, true},
		{"breast feeding without amount", func(r *Record) {
			r.Method = FeedingBreast
			r.AmountML = 0
			r.Side = "left"
		}, false},
		{"bottle feeding without amount", func(r *Record) { r.AmountML = 0 }, true},
		{"unknown feeding method", func(r *Record) { r.Method = "cup" }, true},
		{"diaper valid", func(r *Record) {
			*r = Record{BabyID: "b", Type: RecordDiaper, HappenedAt: r.HappenedAt, Kind: DiaperWet}
		}, false},
		{"diaper unknown kind", func(r *Record) {
			*r = Record{BabyID: "b", Type: RecordDiaper, HappenedAt: r.HappenedAt, Kind: "damp"}
		}, true},
		{"sleep open interval", func(r *Record) {
			*r = Record{BabyID: "b", Type: RecordSleep, HappenedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
		}, false},
		{"sleep closed interval", func(r *Record) {
			*r = Record{BabyID: "b", Type: RecordSleep, HappenedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), EndedAt: &ended}
		}, false},
		{"sleep ends before start", func(r *Record) {
			*r = Record{BabyID: "b", Type: RecordSleep, HappenedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), EndedAt: &badEnd}
		}, true},
		{"solid missing food", func(r *Record) {
			*r = Record{BabyID: "b", Type: RecordSolid, HappenedAt: r.HappenedAt, Food: "  "}
		}, true},
		{"solid unknown reaction", func(r *Record) {
			*r = Record{BabyID: "b", Type: RecordSolid, HappenedAt: r.HappenedAt, Food: "banana", Reaction: "meh"}
		}, true},
		{"measurement all zero", func(r *Record) {
			*r = Record{BabyID: "b", Type: RecordMeasurement, HappenedAt: r.HappenedAt}
		}, true},
		{"measurement weight only", func(r *Record) {
			*r = Record{BabyID: "b", Type: RecordMeasurement, HappenedAt: r.HappenedAt, WeightKG: 6.4}
		}, false},
		{"measurement negative", func(r *Record) {
			*r = Record{BabyID: "b", Type: RecordMeasurement, HappenedAt: r.HappenedAt, WeightKG: 6.4, HeightCM: -1}
		}, true},
		{"snapshot without image", func(r *Record) {
			*r = Record{BabyID: "b", Type: RecordSnapshot, HappenedAt: r.HappenedAt, Caption: "first smile"}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validFeeding()
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "", nil},
		{"whitespace only", "   ", nil},
		{"simple", "bath, park", []string{"bath", "park"}},
		{"dedup and case", "Park, park , PARK", []string{"park"}},
		{"trailing commas", ",first smile,,", []string{"first smile"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTags(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("ParseTags(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ParseTags(%q)[%d] = %q, want %q", tt.raw, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestYearMonthOf(t *testing.T) {
	ym := YearMonthOf(time.Date(2026, 3, 31, 23, 30, 0, 0, time.FixedZone("UTC+2", 2*3600)))
	if ym.Year != 2026 || ym.Month != 3 {
		t.Errorf("YearMonthOf = %v, want 2026-03", ym)
	}
	if ym.String() != "2026-03" {
		t.Errorf("String() = %q", ym.String())
	}
}

func TestBabyProfileAgeAt(t *testing.T) {
	p := BabyProfile{BirthDate: time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC)}

	months, days := p.AgeAt(time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC))
	if months != 4 || days != 5 {
		t.Errorf("AgeAt = %dm %dd, want 4m 5d", months, days)
	}

	// Day-of-month earlier than birth day rolls back a month.
	months, days = p.AgeAt(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	if months != 3 {
		t.Errorf("AgeAt months = %d, want 3", months)
	}

	// Before birth.
	months, days = p.AgeAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if months != 0 || days != 0 {
		t.Errorf("AgeAt before birth = %dm %dd, want 0m 0d", months, days)
	}
}

func TestSessionExpired(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := Session{ExpiresAt: now.Add(time.Hour)}
	if s.Expired(now) {
		t.Error("session should not be expired")
	}
	if !s.Expired(now.Add(time.Hour)) {
		t.Error("session should be expired at exact expiry")
	}
}
