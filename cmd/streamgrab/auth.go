package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vmunix/streamgrab/internal/api"
	"github.com/vmunix/streamgrab/internal/session"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Inspect and refresh stored credentials",
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the normal and alternate profiles",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh both profiles with their refresh tokens and save them",
	Args:  cobra.NoArgs,
	RunE:  runAuthRefresh,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authStatusCmd, authRefreshCmd)
}

func describeProfile(w io.Writer, name string, p session.Profile, now time.Time) {
	if p.IsZero() {
		fmt.Fprintf(w, "  %-10s not configured\n", name)
		return
	}
	state := "valid"
	switch {
	case p.Expired(now):
		state = "expired"
	case p.Expiry.IsZero():
		state = "no expiry"
	}
	country := p.CountryCode
	if country == "" {
		country = "-"
	}
	refresh := "no"
	if p.RefreshToken != "" {
		refresh = "yes"
	}
	fmt.Fprintf(w, "  %-10s %-9s expires %-16s country %-3s refresh token: %s\n",
		name, state, formatAgo(p.Expiry), country, refresh)
}

func runAuthStatus(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	creds, err := session.NewFileStore(cfg.Auth.CredentialsPath).Load()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Credentials: %s\n\n", cfg.Auth.CredentialsPath)
	now := time.Now()
	describeProfile(out, "normal", creds.Normal, now)
	describeProfile(out, "alternate", creds.Alternate, now)
	return nil
}

func runAuthRefresh(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg)

	store := session.NewFileStore(cfg.Auth.CredentialsPath)
	creds, err := store.Load()
	if err != nil {
		return err
	}

	client := api.New(api.Config{
		BaseURL:           cfg.API.BaseURL,
		AuthURL:           cfg.API.AuthURL,
		ImageURL:          cfg.API.ImageURL,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Timeout:           cfg.API.Timeout,
	}, session.New(session.Profile{}), logger)

	out := cmd.OutOrStdout()
	refreshed := 0
	for _, p := range []*session.Profile{&creds.Normal, &creds.Alternate} {
		if p.RefreshToken == "" {
			continue
		}
		np, err := client.Refresh(ctx, *p)
		if err != nil {
			return fmt.Errorf("refresh: %w", err)
		}
		*p = np
		refreshed++
	}
	if refreshed == 0 {
		return fmt.Errorf("%w with a refresh token in %s", errNoCredentials, cfg.Auth.CredentialsPath)
	}
	if err := store.Save(creds); err != nil {
		return err
	}

	fmt.Fprintf(out, "Refreshed %d profile(s)\n\n", refreshed)
	now := time.Now()
	describeProfile(out, "normal", creds.Normal, now)
	describeProfile(out, "alternate", creds.Alternate, now)
	return nil
}
