package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"nestling/internal/auth"
	"nestling/internal/images"
	"nestling/internal/server"
	"nestling/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Starts the nestling API on the configured address and serves it until
SIGINT/SIGTERM. The config file is watched: logging changes apply without a
restart.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer st.Close()

	imgs, err := images.New(cfg.ImagesDir(), cfg.Images.MaxUploadBytes, cfg.Images.MaxEdge, cfg.Images.JPEGQuality)
	if err != nil {
		return err
	}

	bcryptCost := cfg.Auth.BcryptCost
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	authSvc := auth.New(st, cfg.GetSessionTTL(), bcryptCost, cfg.Auth.OpenRegistration)

	srv := server.New(cfg, st, authSvc, imgs, logger)
	logger.Info("starting nestling",
		zap.String("addr", cfg.Server.Addr),
		zap.String("db", cfg.DatabasePath()),
		zap.Duration("session_ttl", cfg.GetSessionTTL()))

	start := time.Now()
	err = srv.Run(cmd.Context(), configPath)
	logger.Info("stopped", zap.Duration("uptime", time.Since(start)))
	return err
}
