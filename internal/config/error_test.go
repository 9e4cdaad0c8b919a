package config

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ConfigError
		want string
	}{
		{
			name: "empty",
			err:  &ConfigError{Path: "/etc/streamgrab/config.toml"},
			want: "",
		},
		{
			name: "missing vars",
			err:  &ConfigError{Path: "/etc/streamgrab/config.toml", Missing: []string{"API_KEY", "SECRET"}},
			want: "/etc/streamgrab/config.toml:\nmissing environment variables: API_KEY; SECRET",
		},
		{
			name: "validation",
			err:  &ConfigError{Errors: []string{"server.port: must be 1-65535", "quality.audio: unknown"}},
			want: "validation failed: server.port: must be 1-65535; quality.audio: unknown",
		},
		{
			name: "both",
			err:  &ConfigError{Path: "/tmp/streamgrab.toml", Missing: []string{"API_KEY"}, Errors: []string{"server.port: invalid"}},
			want: "/tmp/streamgrab.toml:\nmissing environment variables: API_KEY\nvalidation failed: server.port: invalid",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.Equal(t, tt.want != "", tt.err.HasErrors())
		})
	}
}

func TestConfigError_Report(t *testing.T) {
	e := &ConfigError{Missing: []string{"TOKEN"}, Errors: []string{"download.skip: unknown"}}

	var buf bytes.Buffer
	e.Report(&buf)
	assert.Equal(t, "Missing environment variables:\n  - TOKEN\n\nValidation failed:\n  - download.skip: unknown\n\n", buf.String())
}
