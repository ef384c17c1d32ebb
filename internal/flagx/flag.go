// Package flagx lets independent config loaders share os.Args: each loader
// extracts only the flags it owns and parses them with its own FlagSet.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs returns the subset of args that belongs to the given flags.
//
// Valued flags are kept together with their value, which may be given either
// as the next argument ("-p +15550001") or inline ("-p=+15550001"). A next
// argument that starts with "-" is never taken as a value. Switches are
// boolean flags: they are kept alone and never consume the next argument.
func FilterArgs(args []string, valued []string, switches ...string) []string {
	valueFlags := toSet(valued)
	switchFlags := toSet(switches)

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, inline := strings.Cut(arg, "="); inline && strings.HasPrefix(arg, "-") {
			if _, ok := valueFlags[name]; ok {
				filtered = append(filtered, arg)
			} else if _, ok := switchFlags[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := switchFlags[arg]; ok {
			filtered = append(filtered, arg)
			continue
		}

		if _, ok := valueFlags[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// JsonConfigFlags returns the config file path given with -c or -config,
// or an empty string when neither is present.
func JsonConfigFlags() string {
	var config string

	args := FilterArgs(os.Args[1:], []string{"-c", "-config"})

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "Path to config file")
	fs.StringVar(&config, "c", "", "Path to config file (short)")
	_ = fs.Parse(args)

	return config
}
