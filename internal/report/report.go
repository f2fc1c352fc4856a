// Package report builds daily and weekly summaries of a baby's records as
// markdown, for terminal display or pasting into a family chat.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"nestling/internal/store"
	"nestling/internal/types"
)

// Summary aggregates one baby's records over a window.
type Summary struct {
	Baby  *types.BabyProfile
	From  time.Time
	To    time.Time
	Feeds struct {
		Count       int
		TotalML     float64
		BreastCount int
	}
	Diapers map[string]int // kind -> count
	Sleep   struct {
		Sessions   int
		TotalHours float64
	}
	Solids       []*types.Record
	Measurements []*types.Record
	Snapshots    int
}

// Build aggregates the baby's records between from and to.
func Build(st *store.Store, babyID string, from, to time.Time) (*Summary, error) {
	baby, err := st.GetProfile(babyID)
	if err != nil {
		return nil, err
	}

	recs, err := st.ListRecords(store.ListOptions{
		BabyID: babyID,
		From:   from,
		To:     to,
		Asc:    true,
		Limit:  10000,
	})
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Baby:    baby,
		From:    from,
		To:      to,
		Diapers: make(map[string]int),
	}
	for _, r := range recs {
		switch r.Type {
		case types.RecordFeeding:
			s.Feeds.Count++
			s.Feeds.TotalML += r.AmountML
			if r.Method == types.FeedingBreast {
				s.Feeds.BreastCount++
			}
		case types.RecordDiaper:
			s.Diapers[r.Kind]++
		case types.RecordSleep:
			s.Sleep.Sessions++
			if r.EndedAt != nil {
				s.Sleep.TotalHours += r.EndedAt.Sub(r.HappenedAt).Hours()
			}
		case types.RecordSolid:
			s.Solids = append(s.Solids, r)
		case types.RecordMeasurement:
			s.Measurements = append(s.Measurements, r)
		case types.RecordSnapshot:
			s.Snapshots++
		}
	}
	return s, nil
}

// Markdown renders the summary as a markdown document.
func (s *Summary) Markdown() string {
	var b strings.Builder

	days := int(s.To.Sub(s.From).Hours()/24 + 0.5)
	if days < 1 {
		days = 1
	}
	months, extraDays := s.Baby.AgeAt(s.To)

	fmt.Fprintf(&b, "# %s — %s to %s\n\n", s.Baby.Name,
		s.From.Format("Jan 2"), s.To.Format("Jan 2, 2006"))
	fmt.Fprintf(&b, "Age: **%d months %d days**\n\n", months, extraDays)

	fmt.Fprintf(&b, "## Feeding\n\n")
	if s.Feeds.Count == 0 {
		b.WriteString("No feeds logged.\n\n")
	} else {
		fmt.Fprintf(&b, "- %d feeds (%.1f/day)\n", s.Feeds.Count, float64(s.Feeds.Count)/float64(days))
		if s.Feeds.TotalML > 0 {
			fmt.Fprintf(&b, "- %.0f ml total bottle/formula\n", s.Feeds.TotalML)
		}
		if s.Feeds.BreastCount > 0 {
			fmt.Fprintf(&b, "- %d breast feeds\n", s.Feeds.BreastCount)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Diapers\n\n")
	if len(s.Diapers) == 0 {
		b.WriteString("No diaper changes logged.\n\n")
	} else {
		kinds := make([]string, 0, len(s.Diapers))
		for k := range s.Diapers {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(&b, "- %s: %d\n", k, s.Diapers[k])
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Sleep\n\n")
	if s.Sleep.Sessions == 0 {
		b.WriteString("No sleep logged.\n\n")
	} else {
		fmt.Fprintf(&b, "- %d sessions, %.1f hours total (%.1f h/day)\n\n",
			s.Sleep.Sessions, s.Sleep.TotalHours, s.Sleep.TotalHours/float64(days))
	}

	if len(s.Solids) > 0 {
		fmt.Fprintf(&b, "## Solids\n\n")
		fmt.Fprintf(&b, "| Food | Amount | Reaction |\n|---|---|---|\n")
		for _, r := range s.Solids {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", r.Food, r.Amount, r.Reaction)
		}
		b.WriteString("\n")
	}

	if len(s.Measurements) > 0 {
		fmt.Fprintf(&b, "## Growth\n\n")
		fmt.Fprintf(&b, "| Date | Height | Weight | Head |\n|---|---|---|---|\n")
		for _, r := range s.Measurements {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				r.HappenedAt.Format("Jan 2"),
				cmOrDash(r.HeightCM), kgOrDash(r.WeightKG), cmOrDash(r.HeadCM))
		}
		b.WriteString("\n")
	}

	if s.Snapshots > 0 {
		fmt.Fprintf(&b, "%d new photo snapshot(s) this period.\n", s.Snapshots)
	}

	return b.String()
}

func cmOrDash(v float64) string {
	if v <= 0 {
		return "—"
	}
	return fmt.Sprintf("%.1f cm", v)
}

func kgOrDash(v float64) string {
	if v <= 0 {
		return "—"
	}
	return fmt.Sprintf("%.2f kg", v)
}

// RenderTerminal renders the summary's markdown with terminal styling.
func (s *Summary) RenderTerminal(width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(s.Markdown())
}
