package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"nestling/internal/report"
)

var (
	reportDays  int
	reportPlain bool
)

var reportCmd = &cobra.Command{
	Use:   "report [baby-name]",
	Short: "Print a feeding/diaper/sleep/growth summary",
	Long: `Builds a markdown summary of the last N days and renders it for the
terminal. --plain prints raw markdown for pasting into a family chat.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().IntVar(&reportDays, "days", 7, "window size in days")
	reportCmd.Flags().BoolVar(&reportPlain, "plain", false, "print raw markdown")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
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

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -reportDays)
	summary, err := report.Build(st, baby.BabyID, from, to)
	if err != nil {
		return err
	}

	if reportPlain {
		fmt.Print(summary.Markdown())
		return nil
	}

	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	out, err := summary.RenderTerminal(width)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
