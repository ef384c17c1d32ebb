package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/matchbridge/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string    matching service base URL
//	-w string    chat provider websocket URL
//	-p string    phone number of the account
//	-d string    data directory for session, ledger and journal files
//	-t duration  per-request timeout
//	-r float     requests per second (0 disables pacing)
//	-i int       background credential check interval (in seconds)
//	-s           seal the session file under a passphrase
//	-g           cache GET responses in memory
//
// Only these flags are taken from os.Args, via flagx.FilterArgs, so other
// loaders can share the command line.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:],
		[]string{"-a", "-w", "-p", "-d", "-t", "-r", "-i"},
		"-s", "-g")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.BaseURL, "a", cfg.BaseURL, "matching service base URL")
	fs.StringVar(&cfg.ChatWSURL, "w", cfg.ChatWSURL, "chat provider websocket URL")
	fs.StringVar(&cfg.PhoneNumber, "p", cfg.PhoneNumber, "account phone number")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.DurationVar(&cfg.RequestTimeout, "t", cfg.RequestTimeout, "per-request timeout")
	fs.Float64Var(&cfg.RequestsPerSecond, "r", cfg.RequestsPerSecond, "requests per second, 0 disables pacing")
	checkInterval := fs.Int("i", int(cfg.CheckInterval.Seconds()), "credential check interval (in seconds)")
	fs.BoolVar(&cfg.SealSession, "s", cfg.SealSession, "seal the session file under a passphrase")
	fs.BoolVar(&cfg.CacheGETs, "g", cfg.CacheGETs, "cache public profile and content responses in memory")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.CheckInterval = time.Duration(*checkInterval) * time.Second
}
