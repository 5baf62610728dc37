package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/remarket/remarket/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Push pending changes and pull the latest records",
	Long: `Run a full reconcile against the ReMarket API.

Local creates, edits and deletes are pushed first. Records that fail to
push keep their dirty flag and are retried on the next run. The pull
phase then merges the server inventory, skipping any record that is
still dirty locally.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		res, err := a.repo.SyncPending(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Sync failed: %v\n", err)
			os.Exit(1)
		}
		printSyncResult(res)
	},
}

var refreshCmd = &cobra.Command{
	Use:     "refresh",
	GroupID: "sync",
	Short:   "Pull the latest records without pushing",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		if err := a.repo.Refresh(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Refresh failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Local cache refreshed.")
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show session and cache state",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		if a.sess.Active() {
			fmt.Printf("Session:    active (user %s)\n", a.sess.UserID())
		} else {
			fmt.Println("Session:    none")
		}

		total, unsynced, tombstoned, err := a.store.Counts(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading cache: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Cached:     %d products\n", total)
		fmt.Printf("Unsynced:   %d\n", unsynced)
		fmt.Printf("Tombstoned: %d\n", tombstoned)
	},
}

func printSyncResult(res syncer.Result) {
	fmt.Printf("Sync complete in %s\n", res.Duration.Round(time.Millisecond))
	fmt.Printf("  pushed %d, failed %d, purged %d\n", res.Pushed, res.Failed, res.Purged)
	fmt.Printf("  pulled %d, skipped %d dirty\n", res.Pulled, res.Skipped)
}

func init() {
	rootCmd.AddCommand(syncCmd, refreshCmd, statusCmd)
}
