package config

import "time"

// Config holds runtime settings for the matchbridge client.
//
// Durations are time.Duration values; RequestsPerSecond of zero disables
// client-side pacing.
type Config struct {
	BaseURL   string
	ChatWSURL string
	ChatAppID string

	AppVersion   string
	BuildNumber  string
	OSVersion    string
	DeviceRegion string

	PhoneNumber string
	DataDir     string
	SessionFile string
	JournalFile string
	SealSession bool

	RequestTimeout    time.Duration
	RequestsPerSecond float64
	CacheGETs         bool
	// CheckInterval is how often the CLI revalidates credentials in the
	// background, refreshing the chat token when it has expired.
	CheckInterval time.Duration
}

// LoadDefaults populates c with the production endpoints and the client
// build the fingerprint imitates.
func (c *Config) LoadDefaults() {
	c.BaseURL = "https://prod-api.hingeaws.net"
	c.ChatWSURL = "wss://ws-3cdad91c-1e0d-4a0d-bbee-9671988bf9e9.sendbird.com"
	c.ChatAppID = "3CDAD91C-1E0D-4A0D-BBEE-9671988BF9E9"

	c.AppVersion = "9.82.0"
	c.BuildNumber = "11616"
	c.OSVersion = "26.0"
	c.DeviceRegion = "FR"

	c.DataDir = "matchbridge_data"
	c.SessionFile = "session.json"
	c.JournalFile = "journal.db"

	c.RequestTimeout = 15 * time.Second
	c.RequestsPerSecond = 2
	c.CacheGETs = false
	c.CheckInterval = 5 * time.Minute
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
