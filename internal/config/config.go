// Package config handles TOML configuration loading with environment variable substitution.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure.
type Config struct {
	Log      LogConfig      `toml:"log"`
	API      APIConfig      `toml:"api"`
	Auth     AuthConfig     `toml:"auth"`
	Quality  QualityConfig  `toml:"quality"`
	Download DownloadConfig `toml:"download"`
	History  HistoryConfig  `toml:"history"`
	Events   EventsConfig   `toml:"events"`
	Worker   WorkerConfig   `toml:"worker"`
	Server   ServerConfig   `toml:"server"`
	FFmpeg   FFmpegConfig   `toml:"ffmpeg"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type APIConfig struct {
	BaseURL           string        `toml:"base_url"`
	AuthURL           string        `toml:"auth_url"`
	ImageURL          string        `toml:"image_url"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
	Timeout           time.Duration `toml:"timeout"`
}

// AuthConfig locates the credential file and names the qualities that need
// the alternate profile.
type AuthConfig struct {
	CredentialsPath    string   `toml:"credentials_path"`
	AlternateQualities []string `toml:"alternate_qualities"`
}

type QualityConfig struct {
	Audio string `toml:"audio"`
	Video string `toml:"video"`
}

type DownloadConfig struct {
	Root          string          `toml:"root"`
	TempDir       string          `toml:"temp_dir"`
	Skip          string          `toml:"skip"`
	MaxNameLength int             `toml:"max_name_length"`
	Delay         bool            `toml:"delay"`
	DelayMin      time.Duration   `toml:"delay_min"`
	DelayMax      time.Duration   `toml:"delay_max"`
	Lyrics        bool            `toml:"lyrics"`
	Cover         bool            `toml:"cover"`
	ConvertVideo  bool            `toml:"convert_video"`
	ExtractFLAC   bool            `toml:"extract_flac"`
	Templates     TemplatesConfig `toml:"templates"`
}

type TemplatesConfig struct {
	Track    string `toml:"track"`
	Video    string `toml:"video"`
	Playlist string `toml:"playlist"`
	Mix      string `toml:"mix"`
}

type HistoryConfig struct {
	Path string `toml:"path"`
}

type EventsConfig struct {
	Enabled   bool          `toml:"enabled"`
	Path      string        `toml:"path"`
	Retention time.Duration `toml:"retention"`
}

type WorkerConfig struct {
	PollInterval time.Duration `toml:"poll_interval"`
}

// ServerConfig configures the local control API used by "serve".
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type FFmpegConfig struct {
	Path string `toml:"path"`
}

// Default values applied by Load for unset fields.
const (
	DefaultLogLevel      = "info"
	DefaultSkip          = "extension_ignore"
	DefaultAudioQuality  = "HIGH"
	DefaultVideoQuality  = "1080"
	DefaultMaxNameLength = 255
	DefaultHost          = "127.0.0.1"
	DefaultPort          = 8585
	DefaultFFmpeg        = "ffmpeg"
)

// Load reads, substitutes, parses and validates the configuration file.
func Load(path string) (*Config, error) {
	cfg, err := LoadWithoutValidation(path)
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, &ConfigError{Path: path, Errors: errs}
	}
	return cfg, nil
}

// LoadWithoutValidation reads and parses the configuration file and applies
// defaults. Unresolved environment variables are still an error.
func LoadWithoutValidation(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	content, missing := substituteEnvVars(string(data))
	if len(missing) > 0 {
		return nil, &ConfigError{Path: path, Missing: missing}
	}

	cfg := Defaults()
	if _, err := toml.Decode(content, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Defaults returns the configuration used when a key is absent. Booleans
// that default to true are set here, before decoding, so a file can turn
// them off.
func Defaults() *Config {
	cfg := &Config{
		Download: DownloadConfig{
			Lyrics:       true,
			Cover:        true,
			ConvertVideo: true,
			ExtractFLAC:  true,
		},
		Events: EventsConfig{Enabled: true},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Quality.Audio == "" {
		c.Quality.Audio = DefaultAudioQuality
	}
	if c.Quality.Video == "" {
		c.Quality.Video = DefaultVideoQuality
	}
	if c.Auth.AlternateQualities == nil {
		c.Auth.AlternateQualities = []string{"HI_RES_LOSSLESS"}
	}
	if c.Auth.CredentialsPath == "" {
		c.Auth.CredentialsPath = filepath.Join(StateDir(), "credentials.json")
	}
	if c.Download.Root == "" {
		c.Download.Root = defaultMusicDir()
	}
	if c.Download.Skip == "" {
		c.Download.Skip = DefaultSkip
	}
	if c.Download.MaxNameLength == 0 {
		c.Download.MaxNameLength = DefaultMaxNameLength
	}
	if c.Download.DelayMin == 0 && c.Download.DelayMax == 0 {
		c.Download.DelayMin = 3 * time.Second
		c.Download.DelayMax = 8 * time.Second
	}
	if c.History.Path == "" {
		c.History.Path = filepath.Join(StateDir(), "history.json")
	}
	if c.Events.Path == "" {
		c.Events.Path = filepath.Join(StateDir(), "events.db")
	}
	if c.Events.Retention == 0 {
		c.Events.Retention = 30 * 24 * time.Hour
	}
	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = 500 * time.Millisecond
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.FFmpeg.Path == "" {
		c.FFmpeg.Path = DefaultFFmpeg
	}
}

// Addr returns the host:port the control API listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// envVarPattern matches ${VAR}, ${VAR:-default} and ${VAR:?message}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:-|:\?)([^}]*))?\}`)

// substituteEnvVars replaces variable references with environment values.
// References that cannot be resolved are left in place and reported.
func substituteEnvVars(content string) (string, []string) {
	var missing []string
	out := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		m := envVarPattern.FindStringSubmatch(match)
		name, op, arg := m[1], m[2], m[3]
		value, ok := os.LookupEnv(name)

		switch op {
		case ":-":
			if !ok || value == "" {
				return arg
			}
			return value
		case ":?":
			if !ok || value == "" {
				missing = append(missing, name+": "+strings.TrimSpace(arg))
				return match
			}
			return value
		}
		if !ok {
			missing = append(missing, name)
			return match
		}
		return value
	})
	return out, missing
}
