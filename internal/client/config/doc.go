// Package config loads runtime configuration for the matchbridge client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string    matching service base URL
//	-w string    chat provider websocket URL
//	-p string    account phone number
//	-d string    data directory
//	-t duration  per-request timeout, e.g. 10s
//	-r float     requests per second
//	-i int       background credential check interval (seconds)
//	-s           seal the session file
//	-g           cache GET responses
//
// # JSON schema
//
// Durations use timex.Duration, so they may be strings like "10s" or integer
// nanoseconds. Fields left out keep their previous value:
//
//	{
//	  "base_url": "https://prod-api.hingeaws.net",
//	  "phone_number": "+15550001",
//	  "data_dir": "matchbridge_data",
//	  "request_timeout": "10s",
//	  "requests_per_second": 2,
//	  "seal_session": true
//	}
//
// The session passphrase is never read from JSON or flags; the CLI prompts
// for it when SealSession is set.
package config
