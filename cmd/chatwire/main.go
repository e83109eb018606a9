// File: cmd/chatwire/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Command chatwire runs the WebSocket chat server.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/momentics/chatwire/config"
	"github.com/momentics/chatwire/internal/auth"
	"github.com/momentics/chatwire/internal/chat"
	"github.com/momentics/chatwire/internal/chat/historic"
	"github.com/momentics/chatwire/internal/rights"
	"github.com/momentics/chatwire/internal/server"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "chatwire",
	Short: "Multi-room WebSocket chat server",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat server until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./chatwire.yaml)")
	rootCmd.AddCommand(serveCmd)
}

func newLogger(verbose bool) zerolog.Logger {
	if verbose {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(zerolog.DebugLevel).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}

func serve(cfg *config.Config) error {
	log := newLogger(cfg.Verbose)

	db, err := auth.OpenDB(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	provider, err := auth.NewSQLiteProvider(db)
	if err != nil {
		return err
	}
	rightsStore, err := rights.NewSQLiteStore(db)
	if err != nil {
		return err
	}
	store, err := historic.NewStore(cfg.HistoricDir)
	if err != nil {
		return err
	}

	reg := server.NewRegistry(log, cfg.NotificationService, cfg.WebsocketService)
	srv, err := server.New(log, server.Config{
		Address:             cfg.Address,
		Port:                cfg.Port,
		ServiceKey:          cfg.ServiceKey,
		NotificationService: cfg.NotificationService,
		WebsocketService:    cfg.WebsocketService,
		RateLimitEnabled:    cfg.RateLimit.Enabled,
		RatePerSecond:       cfg.RateLimit.MessagesPerSecond,
		RateBurst:           cfg.RateLimit.Burst,
	}, reg, provider)
	if err != nil {
		return err
	}

	reg.RegisterFactory(cfg.ChatServiceName, func() (server.Handler, error) {
		svc, err := chat.New(log, chat.Config{
			ServiceName:         cfg.ChatServiceName,
			MaxMessagesPerFile:  cfg.MaxMessagesPerFile,
			DefaultRoomMaxUsers: cfg.DefaultRoomMaxUsers,
		}, srv, provider, rightsStore, store)
		if err != nil {
			return nil, err
		}
		return svc, nil
	})
	if note := reg.AddService(cfg.ChatServiceName); !note.Success {
		return fmt.Errorf("start chat service: %s", note.Text)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Info().Str("signal", s.String()).Msg("shutting down")
		srv.Stop()
	}()

	return srv.Run()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
