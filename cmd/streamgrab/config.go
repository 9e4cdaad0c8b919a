package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vmunix/streamgrab/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as TOML",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate configuration file",
	Long:  "Validates config.toml syntax, values and environment variable substitution without downloading anything.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configValidateCmd)
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.DefaultPath()
	if len(args) > 0 {
		path = args[0]
	}

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.WriteDefault(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if path == "" {
		fmt.Fprintln(out, "# no config file found, showing defaults")
	} else {
		fmt.Fprintf(out, "# %s\n", path)
	}
	return cfg.Encode(out)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configPath
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		found, err := config.Discover()
		if err != nil {
			return err
		}
		path = found
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", path)

	cfg, err := config.Load(path)
	if err != nil {
		var configErr *config.ConfigError
		if errors.As(err, &configErr) {
			configErr.Report(out)
			return errors.New("configuration invalid")
		}
		return fmt.Errorf("failed to load config: %w", err)
	}

	printConfigSummary(out, cfg)
	fmt.Fprintln(out, "\nConfiguration valid!")
	return nil
}

func printConfigSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Configuration Summary:")
	fmt.Fprintf(w, "  Downloads:   %s (skip: %s)\n", cfg.Download.Root, cfg.Download.Skip)
	fmt.Fprintf(w, "  Quality:     audio %s, video %s\n", cfg.Quality.Audio, cfg.Quality.Video)
	fmt.Fprintf(w, "  Alternate:   %s\n", strings.Join(cfg.Auth.AlternateQualities, ", "))
	fmt.Fprintf(w, "  Credentials: %s\n", cfg.Auth.CredentialsPath)
	fmt.Fprintf(w, "  History:     %s\n", cfg.History.Path)

	sidecars := []string{}
	if cfg.Download.Lyrics {
		sidecars = append(sidecars, "lyrics")
	}
	if cfg.Download.Cover {
		sidecars = append(sidecars, "cover")
	}
	if len(sidecars) > 0 {
		fmt.Fprintf(w, "  Sidecars:    %s\n", strings.Join(sidecars, ", "))
	}

	if cfg.Events.Enabled {
		fmt.Fprintf(w, "  Events:      %s (retention %s)\n", cfg.Events.Path, cfg.Events.Retention)
	} else {
		fmt.Fprintln(w, "  Events:      disabled")
	}
	fmt.Fprintf(w, "  Server:      %s (log: %s)\n", cfg.Server.Addr(), cfg.Log.Level)
}
