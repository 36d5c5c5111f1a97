package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/marcus/brewlog/internal/auth"
	"github.com/marcus/brewlog/internal/output"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var authCmd = &cobra.Command{
	Use:     "auth",
	Short:   "Manage sync authentication",
	GroupID: "system",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the sync server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Print("Username: ")
		reader := bufio.NewReader(os.Stdin)
		username, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read username: %w", err)
		}
		username = strings.TrimSpace(username)
		if username == "" {
			return fmt.Errorf("username required")
		}

		fmt.Print("Password: ")
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}

		ctx := cmd.Context()
		resp, err := a.client.Login(ctx, username, string(pw))
		if err != nil {
			output.Error("login: %v", err)
			return err
		}

		if err := a.auth.ApplySession(resp.AccessToken, resp.User); err != nil {
			output.Error("establish session: %v", err)
			return err
		}
		a.client.Token = resp.AccessToken

		// Device token registration is best-effort: login succeeds
		// without it, and the next login can retry.
		dts := auth.NewDeviceTokenService(a.cfg, a.client, a.cfg.DeviceTokenTimeout())
		if _, err := dts.CreateDeviceToken(ctx, username); err != nil {
			output.Warning("device token registration failed: %v", err)
		}

		output.Success("Logged in as %s", resp.User.Username)

		// Post-login sync so locally queued work from a previous
		// session starts moving right away.
		maybeAutoSync(a, resp.User.ID)
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and wipe local data for the account",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		userID, err := a.requireUser()
		if err != nil {
			fmt.Println("Not logged in.")
			return nil
		}

		// Order matters: stop sync first so a stale reconciliation
		// cannot re-write data after the wipe.
		a.coord.Cancel(userID)
		a.coord.ResetStatus(userID)

		if err := a.store.ClearForUser(userID); err != nil {
			output.Error("clear local data: %v", err)
			return err
		}
		if err := a.cfg.ClearCredentials(); err != nil {
			output.Error("clear credentials: %v", err)
			return err
		}

		fmt.Println("Logged out.")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		creds, err := a.cfg.LoadCredentials()
		if err != nil {
			return err
		}
		if creds == nil || creds.UserID == "" {
			fmt.Println("Not logged in.")
			return nil
		}

		status, _ := a.auth.Refresh(creds.UserID)

		fmt.Printf("User:   %s\n", creds.Username)
		fmt.Printf("Server: %s\n", creds.ServerURL)
		fmt.Printf("State:  %s\n", status)

		// Profile refresh is bounded so status never hangs offline;
		// on timeout the cached credentials above are all we show.
		ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.ProfileFetchTimeout())
		defer cancel()
		if user, err := a.client.Me(ctx); err == nil && user.Email != "" {
			fmt.Printf("Email:  %s\n", user.Email)
		}

		token, err := a.store.LoadToken(creds.UserID)
		if err == nil {
			res := auth.Validate(token, a.cfg.TokenSignKey(), a.cfg.GracePeriodDays(), nowUTC())
			if res.State == auth.StateExpiredInGrace {
				output.Warning("token expired %d day(s) ago; sync until grace runs out", res.DaysSinceExpiry)
			}
		}
		return nil
	},
}

var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the session using the stored device token",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		dts := auth.NewDeviceTokenService(a.cfg, a.client, a.cfg.DeviceTokenTimeout())
		if !dts.HasDeviceToken() {
			return fmt.Errorf("no device token stored; run 'brewlog auth login'")
		}

		resp, err := dts.ExchangeDeviceToken(cmd.Context())
		if err != nil {
			output.Error("device token exchange: %v", err)
			return err
		}
		if err := a.auth.ApplySession(resp.AccessToken, resp.User); err != nil {
			output.Error("establish session: %v", err)
			return err
		}
		a.client.Token = resp.AccessToken
		output.Success("Session refreshed for %s", resp.User.Username)
		return nil
	},
}

func init() {
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authRefreshCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}
