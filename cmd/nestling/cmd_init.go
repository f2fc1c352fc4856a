package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"nestling/internal/config"
	"nestling/internal/store"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the data directory, config file and database",
	Long: `Writes a default config file, creates the data directory and
initializes the SQLite database so "nestling serve" can start cleanly.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath)
	}

	cfg := config.DefaultConfig()
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := cfg.Save(configPath); err != nil {
		return err
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer st.Close()

	fmt.Printf("Config written to %s\n", configPath)
	fmt.Printf("Database initialized at %s\n", cfg.DatabasePath())
	fmt.Println("Next: nestling user add --email you@example.com --password '...' --household-name \"Family\"")
	return nil
}
