// internal/config/validate.go
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true, "": true,
}

var validSkipPolicies = map[string]bool{
	"disabled": true, "extension_ignore": true, "filename": true, "append": true,
}

var validAudioQualities = []string{"LOW", "HIGH", "LOSSLESS", "HI_RES_LOSSLESS"}

var validVideoQualities = []string{"360", "480", "720", "1080"}

// Validate checks the configuration for errors.
// Returns a slice of error messages (empty if valid).
func (c *Config) Validate() []string {
	var errs []string

	if !validLogLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level: must be one of debug, info, warn, error; got %q", c.Log.Level))
	}

	// API endpoints are optional; set ones must be absolute URLs.
	for key, raw := range map[string]string{
		"api.base_url":  c.API.BaseURL,
		"api.auth_url":  c.API.AuthURL,
		"api.image_url": c.API.ImageURL,
	} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("%s: must be an absolute URL, got %q", key, raw))
		}
	}
	if c.API.RequestsPerSecond < 0 {
		errs = append(errs, "api.requests_per_second: must not be negative")
	}
	if c.API.Timeout < 0 {
		errs = append(errs, "api.timeout: must not be negative")
	}

	// Quality validation
	if !slices.Contains(validAudioQualities, c.Quality.Audio) {
		errs = append(errs, fmt.Sprintf("quality.audio: must be one of %s; got %q", strings.Join(validAudioQualities, ", "), c.Quality.Audio))
	}
	if !slices.Contains(validVideoQualities, c.Quality.Video) {
		errs = append(errs, fmt.Sprintf("quality.video: must be one of %s; got %q", strings.Join(validVideoQualities, ", "), c.Quality.Video))
	}
	for _, q := range c.Auth.AlternateQualities {
		if !slices.Contains(validAudioQualities, q) && !slices.Contains(validVideoQualities, q) {
			errs = append(errs, fmt.Sprintf("auth.alternate_qualities: unknown quality %q", q))
		}
	}

	// Download validation
	if c.Download.Root == "" {
		errs = append(errs, "download.root: required")
	}
	if !validSkipPolicies[c.Download.Skip] {
		errs = append(errs, fmt.Sprintf("download.skip: must be one of disabled, extension_ignore, filename, append; got %q", c.Download.Skip))
	}
	if c.Download.MaxNameLength < 16 || c.Download.MaxNameLength > 255 {
		errs = append(errs, fmt.Sprintf("download.max_name_length: must be between 16 and 255, got %d", c.Download.MaxNameLength))
	}
	if c.Download.DelayMin < 0 || c.Download.DelayMax < c.Download.DelayMin {
		errs = append(errs, fmt.Sprintf("download.delay_min/delay_max: need 0 <= min <= max, got %s and %s", c.Download.DelayMin, c.Download.DelayMax))
	}
	for key, tmpl := range map[string]string{
		"track":    c.Download.Templates.Track,
		"video":    c.Download.Templates.Video,
		"playlist": c.Download.Templates.Playlist,
		"mix":      c.Download.Templates.Mix,
	} {
		if tmpl == "" {
			continue // built-in default
		}
		if filepath.IsAbs(tmpl) || strings.HasPrefix(tmpl, "/") {
			errs = append(errs, fmt.Sprintf("download.templates.%s: must be relative to download.root", key))
		}
		if slices.Contains(strings.FieldsFunc(tmpl, func(r rune) bool { return r == '/' || r == '\\' }), "..") {
			errs = append(errs, fmt.Sprintf("download.templates.%s: must not contain \"..\"", key))
		}
	}

	if c.History.Path == "" {
		errs = append(errs, "history.path: required")
	}
	if c.Events.Enabled && c.Events.Path == "" {
		errs = append(errs, "events.path: required when events are enabled")
	}
	if c.Events.Retention < 0 {
		errs = append(errs, "events.retention: must not be negative")
	}
	if c.Worker.PollInterval < 0 {
		errs = append(errs, "worker.poll_interval: must not be negative")
	}

	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port: must be between 1 and 65535, got %d", c.Server.Port))
	}

	slices.Sort(errs)
	return errs
}
