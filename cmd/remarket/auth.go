package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/remarket/remarket/internal/api"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "auth",
	Short:   "Log in to the ReMarket API",
	Long: `Authenticate against the ReMarket API and store the session locally.

The password is read from the terminal without echo. The session token is
persisted under the data directory and attached to every subsequent request
until logout or expiry.`,
	Run: func(cmd *cobra.Command, args []string) {
		email, _ := cmd.Flags().GetString("email")
		if email == "" {
			fmt.Print("Email: ")
			fmt.Scanln(&email)
		}

		fmt.Print("Password: ")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading password: %v\n", err)
			os.Exit(1)
		}

		a := mustApp()
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		resp, err := a.client.Login(ctx, api.LoginRequest{
			Email:    strings.TrimSpace(email),
			Password: string(password),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Login failed: %v\n", err)
			os.Exit(1)
		}

		if err := a.sess.Set(resp.Token, resp.UserID); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving session: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Logged in as %s\n", a.sess.UserID())
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "auth",
	Short:   "Log out and wipe the local cache",
	Long: `Clear the stored session and wipe the local record store.

The wipe discards any unpushed local changes; sync first if you want to
keep them.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		if err := a.sess.Clear(); err != nil {
			fmt.Fprintf(os.Stderr, "Error clearing session: %v\n", err)
			os.Exit(1)
		}
		if err := a.store.ClearAll(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error wiping local cache: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Logged out.")
	},
}

func init() {
	loginCmd.Flags().String("email", "", "account email")
	rootCmd.AddCommand(loginCmd, logoutCmd)
}
