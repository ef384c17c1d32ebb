package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all valued flags",
			args: []string{"cmd", "-a", "https://api.test", "-w", "wss://chat.test", "-p", "+15550001",
				"-d", "/tmp/mb", "-t", "5s", "-r", "0.5", "-i", "90"},
			expected: &Config{
				BaseURL:           "https://api.test",
				ChatWSURL:         "wss://chat.test",
				PhoneNumber:       "+15550001",
				DataDir:           "/tmp/mb",
				RequestTimeout:    5 * time.Second,
				RequestsPerSecond: 0.5,
				CheckInterval:     90 * time.Second,
			},
		},
		{
			name:     "switches do not swallow the next flag",
			args:     []string{"cmd", "-s", "-p", "+15550002", "-g"},
			expected: &Config{PhoneNumber: "+15550002", SealSession: true, CacheGETs: true},
		},
		{
			name:     "foreign flags are ignored",
			args:     []string{"cmd", "-c", "cfg.json", "-x", "1", "-p=+15550003"},
			expected: &Config{PhoneNumber: "+15550003"},
		},
		{name: "bad duration", args: []string{"cmd", "-t", "soon"}, expectPanic: true},
		{name: "bad rate", args: []string{"cmd", "-r", "fast"}, expectPanic: true},
		{name: "bad check interval", args: []string{"cmd", "-i", "abc"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			config := &Config{}

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config) })
				return
			}
			require.NotPanics(t, func() { parseFlags(config) })
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
