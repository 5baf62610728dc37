package main

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/remarket/remarket/internal/config"
	"github.com/remarket/remarket/internal/daemon"
	"github.com/remarket/remarket/internal/dashboard"
	"github.com/remarket/remarket/internal/logging"
	"github.com/remarket/remarket/internal/netmon"
	"github.com/remarket/remarket/internal/store"
	"github.com/remarket/remarket/internal/syncer"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon",
	Long: `Keep the local cache reconciled against the ReMarket API.

The daemon runs a reconcile on a fixed interval, immediately when
connectivity comes back, and whenever a local mutation requests one.
Failed runs back off exponentially. With --dashboard (or dashboard_addr
in the config) a WebSocket feed publishes the live product list and run
results for local monitoring.

Sync interval and log level are re-read from the config file on change
without a restart.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()

		if addr, _ := cmd.Flags().GetString("dashboard"); addr != "" {
			a.cfg.DashboardAddr = addr
		}

		// Daemon mode logs JSON to a rotated file alongside the console.
		log, logLevel := logging.NewDaemon(a.cfg.LogLevel, a.cfg.LogFile)
		defer log.Sync()
		a.log = log

		ctx, cancel := signalContext()
		defer cancel()

		moncfg := netmon.DefaultConfig(probeAddr(a.cfg.ServerURL))
		moncfg.Interval = a.cfg.ProbeInterval
		monitor := netmon.New(moncfg, nil, log.Named("netmon"))
		go monitor.Start(ctx)

		rec := syncer.New(a.store, a.client, log.Named("sync"), a.cfg.MaxPushAttempts)
		trigger := daemon.New(daemon.Config{
			Interval:    a.cfg.SyncInterval,
			BackoffBase: a.cfg.SyncBackoffBase,
			MaxRetries:  a.cfg.SyncMaxRetries,
		}, rec, monitor, log.Named("trigger"))

		var dash *dashboard.Server
		if a.cfg.DashboardAddr != "" {
			dash = dashboard.NewServer(a.cfg.DashboardAddr, log.Named("dashboard"))
			if err := dash.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error starting dashboard: %v\n", err)
				os.Exit(1)
			}
			defer dash.Stop()
			log.Info("dashboard listening", zap.String("addr", dash.Addr()))

			trigger.OnRunComplete(func(result syncer.Result, err error) {
				dash.PublishSyncResult(result, err)
				publishStats(ctx, a, dash)
			})

			go func() {
				for records := range a.store.Observe(ctx) {
					dash.PublishProducts(store.Products(records))
					publishStats(ctx, a, dash)
				}
			}()
		}

		config.Watch(a.viper, func(cfg *config.Config) {
			log.Info("config reloaded",
				zap.Duration("sync_interval", cfg.SyncInterval),
				zap.String("log_level", cfg.LogLevel))
			trigger.UpdateInterval(cfg.SyncInterval)
			logLevel.SetLevel(logging.ParseLevel(cfg.LogLevel))
		})

		log.Info("daemon started",
			zap.String("server", a.cfg.ServerURL),
			zap.Duration("sync_interval", a.cfg.SyncInterval))

		trigger.Start(ctx)
		log.Info("daemon shutting down")
	},
}

// publishStats pushes current store counters to the dashboard.
func publishStats(ctx context.Context, a *app, dash *dashboard.Server) {
	total, unsynced, tombstoned, err := a.store.Counts(ctx)
	if err != nil {
		return
	}
	dash.PublishStats(dashboard.StatsData{
		Total:      total,
		Unsynced:   unsynced,
		Tombstoned: tombstoned,
	})
}

// probeAddr derives the connectivity probe target from the server URL.
func probeAddr(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" {
		return serverURL
	}
	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https":
			host += ":443"
		default:
			host += ":80"
		}
	}
	return host
}

func init() {
	daemonCmd.Flags().String("dashboard", "", "dashboard listen address (host:port)")
	rootCmd.AddCommand(daemonCmd)
}
