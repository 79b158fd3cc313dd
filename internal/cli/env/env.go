// Package env looks up environment variables with fallback keys and
// simple type conversion. Values found here override the config file so
// containerized deployments can be tuned without editing YAML.
package env

import (
	"os"
	"strconv"
	"strings"
)

// Lookup searches the given keys in order and returns the first
// non-empty trimmed value. The second return reports whether any key
// held a usable value.
func Lookup(keys ...string) (string, bool) {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed, true
			}
		}
	}
	return "", false
}

// LookupInt searches the given keys and parses the first value as an
// integer. Unparsable values are treated as absent.
func LookupInt(keys ...string) (int, bool) {
	if value, ok := Lookup(keys...); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n, true
		}
	}
	return 0, false
}

// LookupBool searches the given keys and interprets the first value as a
// boolean. "true", "1", and "yes" are true, case-insensitively.
func LookupBool(keys ...string) (bool, bool) {
	if value, ok := Lookup(keys...); ok {
		v := strings.ToLower(value)
		return v == "true" || v == "1" || v == "yes", true
	}
	return false, false
}
