// Package env reads process environment variables with fallbacks, for the
// few knobs needed before config loading (notably logger bootstrap).
package env

import "os"

// Get returns the named variable, or fallback when it is unset or empty.
func Get(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
