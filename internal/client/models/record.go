// Package models defines the client's domain records: the persisted session
// record, feed subjects, content items and rating payloads.
package models

import "time"

// Record is the durable per-account session state. Device, install and
// session identifiers are generated once and never rotate for the lifetime
// of the record; credentials are mutated only by the auth service.
type Record struct {
	AccountID string `json:"phone_number"`
	DeviceID  string `json:"device_id"`
	InstallID string `json:"install_id"`
	SessionID string `json:"session_id"`
	Installed bool   `json:"installed"`

	PrimaryToken        string    `json:"primary_token"`
	PrimaryTokenExpires time.Time `json:"primary_token_expires"`
	IdentityID          string    `json:"identity_id"`

	ChatToken        string    `json:"chat_token"`
	ChatTokenExpires time.Time `json:"chat_token_expires"`
	// ChatSessionKey is only meaningful while ChatToken is unexpired.
	ChatSessionKey string `json:"chat_session_key"`
}

// Credentials is the token view of a Record.
type Credentials struct {
	PrimaryToken        string
	PrimaryTokenExpires time.Time
	ChatToken           string
	ChatTokenExpires    time.Time
	ChatSessionKey      string
}

func (r Record) Credentials() Credentials {
	return Credentials{
		PrimaryToken:        r.PrimaryToken,
		PrimaryTokenExpires: r.PrimaryTokenExpires,
		ChatToken:           r.ChatToken,
		ChatTokenExpires:    r.ChatTokenExpires,
		ChatSessionKey:      r.ChatSessionKey,
	}
}

// PrimaryValid reports whether the primary token is set and unexpired at now.
func (c Credentials) PrimaryValid(now time.Time) bool {
	return c.PrimaryToken != "" && c.PrimaryTokenExpires.After(now)
}

// ChatValid reports whether the chat token is set and unexpired at now.
func (c Credentials) ChatValid(now time.Time) bool {
	return c.ChatToken != "" && c.ChatTokenExpires.After(now)
}
