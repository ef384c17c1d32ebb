package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/matchbridge/internal/flagx"
	"github.com/dmitrijs2005/matchbridge/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Absent
// fields leave the corresponding Config value alone.
type JsonConfig struct {
	BaseURL   string `json:"base_url"`
	ChatWSURL string `json:"chat_ws_url"`
	ChatAppID string `json:"chat_app_id"`

	AppVersion   string `json:"app_version"`
	BuildNumber  string `json:"build_number"`
	OSVersion    string `json:"os_version"`
	DeviceRegion string `json:"device_region"`

	PhoneNumber string `json:"phone_number"`
	DataDir     string `json:"data_dir"`
	SessionFile string `json:"session_file"`
	JournalFile string `json:"journal_file"`
	SealSession *bool  `json:"seal_session"`

	RequestTimeout    timex.Duration `json:"request_timeout"`
	RequestsPerSecond *float64       `json:"requests_per_second"`
	CacheGETs         *bool          `json:"cache_gets"`
	CheckInterval     timex.Duration `json:"check_interval"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// -c or -config. It panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.BaseURL, jc.BaseURL)
	setString(&cfg.ChatWSURL, jc.ChatWSURL)
	setString(&cfg.ChatAppID, jc.ChatAppID)
	setString(&cfg.AppVersion, jc.AppVersion)
	setString(&cfg.BuildNumber, jc.BuildNumber)
	setString(&cfg.OSVersion, jc.OSVersion)
	setString(&cfg.DeviceRegion, jc.DeviceRegion)
	setString(&cfg.PhoneNumber, jc.PhoneNumber)
	setString(&cfg.DataDir, jc.DataDir)
	setString(&cfg.SessionFile, jc.SessionFile)
	setString(&cfg.JournalFile, jc.JournalFile)

	if jc.SealSession != nil {
		cfg.SealSession = *jc.SealSession
	}
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.RequestsPerSecond != nil {
		cfg.RequestsPerSecond = *jc.RequestsPerSecond
	}
	if jc.CacheGETs != nil {
		cfg.CacheGETs = *jc.CacheGETs
	}
	if jc.CheckInterval.Duration != 0 {
		cfg.CheckInterval = jc.CheckInterval.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
