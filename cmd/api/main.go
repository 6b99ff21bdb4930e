package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"wellness-todo/backend/internal/clock"
	"wellness-todo/backend/internal/config"
	"wellness-todo/backend/internal/database"
	"wellness-todo/backend/internal/routes"
)

// options はすべてのサブコマンドで共通のフラグです。
type options struct {
	envFile    string
	configPath string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	serve := func(cmd *cobra.Command, args []string) error { return runServe(opts) }

	rootCmd := &cobra.Command{
		Use:          "api",
		Short:        "Wellness to-do API server",
		SilenceUsage: true,
		RunE:         serve,
	}
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env", ".env", ".env file to load")
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "optional config file (yaml)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  serve,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts)
		},
	})
	return rootCmd
}

func runServe(opts *options) error {
	cfg, err := config.Load(opts.envFile, opts.configPath)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	r, err := routes.SetupRouter(db, cfg, clock.System(loc))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server listening on port %s (timezone %s)...", cfg.Port, loc)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func runMigrate(opts *options) error {
	cfg, err := config.Load(opts.envFile, opts.configPath)
	if err != nil {
		return err
	}
	// Open はマイグレーションを適用してから返る
	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Println("Migrations applied")
	return nil
}
