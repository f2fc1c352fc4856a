package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"nestling/internal/store"
	"nestling/internal/tui"
	"nestling/internal/types"
)

var logCmd = &cobra.Command{
	Use:   "log [baby-name]",
	Short: "Open the terminal quick-log form",
	Long: `Opens an interactive form for logging a feed, diaper, sleep, solid or
measurement straight into the database. With multiple babies in the
household, name the one to log for.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLog,
}

func init() {
	rootCmd.AddCommand(logCmd)
}

func runLog(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var name string
	if len(args) > 0 {
		name = args[0]
	}
	baby, err := resolveBaby(st, name)
	if err != nil {
		return err
	}

	model := tui.NewModel(st, baby.BabyID, baby.Name)
	prog := tea.NewProgram(model)
	final, err := prog.Run()
	if err != nil {
		return err
	}

	if m, ok := final.(tui.Model); ok && m.Saved() != nil {
		fmt.Printf("Logged %s for %s.\n", m.Saved().Type, baby.Name)
	}
	return nil
}

// resolveBaby finds a baby by (case-insensitive) name, or returns the only
// baby when the name is empty and exactly one exists.
func resolveBaby(st *store.Store, name string) (*types.BabyProfile, error) {
	babies, err := st.ListAllBabies()
	if err != nil {
		return nil, err
	}
	if len(babies) == 0 {
		return nil, fmt.Errorf("no babies yet: nestling baby add --email you@example.com --name June --birth 2025-11-15")
	}
	if name == "" {
		if len(babies) == 1 {
			return babies[0], nil
		}
		names := make([]string, len(babies))
		for i, b := range babies {
			names[i] = b.Name
		}
		return nil, fmt.Errorf("multiple babies (%s): name one", strings.Join(names, ", "))
	}

	for _, b := range babies {
		if strings.EqualFold(b.Name, name) {
			return b, nil
		}
	}
	return nil, fmt.Errorf("no baby named %q", name)
}
