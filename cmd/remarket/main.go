// Command remarket is the ReMarket marketplace client: it keeps a local,
// offline-capable cache of product listings and reconciles it against the
// remote API in the background.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/remarket/remarket/internal/api"
	"github.com/remarket/remarket/internal/config"
	"github.com/remarket/remarket/internal/logging"
	"github.com/remarket/remarket/internal/media"
	"github.com/remarket/remarket/internal/repo"
	"github.com/remarket/remarket/internal/session"
	"github.com/remarket/remarket/internal/store"
	"github.com/remarket/remarket/internal/syncer"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "remarket",
	Short: "Offline-first ReMarket marketplace client",
	Long: `remarket manages product listings against the ReMarket API with an
offline-first local cache.

Mutations (create, update, delete) are written to the local store first and
pushed to the server by a background reconcile pass, so they succeed even
without connectivity. Reads are always served from the local store.

Run 'remarket daemon' to keep the cache synchronized continuously, or
'remarket sync' for a one-shot reconcile.`,
}

func main() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "products", Title: "Product commands:"},
		&cobra.Group{ID: "sync", Title: "Sync commands:"},
		&cobra.Group{ID: "auth", Title: "Auth commands:"},
	)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.remarket/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the wired subsystems behind the one-shot CLI commands. The
// daemon command does its own wiring because it additionally needs the
// connectivity monitor, trigger, and dashboard.
type app struct {
	cfg    *config.Config
	viper  *viper.Viper
	log    *zap.Logger
	sess   *session.Session
	store  *store.Store
	client *api.Client
	repo   *repo.Repository
}

// newApp loads config and opens the local store. The caller must Close().
func newApp() (*app, error) {
	cfg, v, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	log := logging.New(cfg.LogLevel)

	sess, err := session.Load(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DBPath(), log.Named("store"))
	if err != nil {
		return nil, err
	}

	client := api.NewClient(cfg.ServerURL, sess, log.Named("api"))
	rec := syncer.New(st, client, log.Named("sync"), cfg.MaxPushAttempts)

	host := media.NewHTTPHost(cfg.ServerURL+"/media/upload", nil)
	uploader := media.NewService(host, cfg.UploadTimeout, log.Named("media"))

	repository := repo.New(st, client, rec, nil, uploader, sess, log.Named("repo"))

	return &app{
		cfg:    cfg,
		viper:  v,
		log:    log,
		sess:   sess,
		store:  st,
		client: client,
		repo:   repository,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("closing store failed", zap.Error(err))
	}
	_ = a.log.Sync()
}

// mustApp wires the app or exits.
func mustApp() *app {
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return a
}

// signalContext returns a context cancelled by SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
