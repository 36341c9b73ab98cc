// Package config centralizes the small set of environment-driven knobs
// the introspection binary (cmd/goproc-introspect) reads at startup.
package config

import (
	"os"
	"strconv"
)

// HTTPAddr is the listen address for the introspection API, defaulting to
// ":8080".
func HTTPAddr() string {
	return getEnvDefault("GOPROC_HTTP_ADDR", ":8080")
}

// RedisAddr is the optional redis instance used by redisbus for
// completion fan-out. Empty disables the bus.
func RedisAddr() string {
	return os.Getenv("GOPROC_REDIS_ADDR")
}

// SessionSecret signs the gin-contrib/sessions cookie store. A fixed dev
// default is used when unset; production deployments are expected to
// override it.
func SessionSecret() string {
	return getEnvDefault("GOPROC_SESSION_SECRET", "dev-insecure-secret-change-me")
}

// DefaultGracePeriod is the seconds a managed process gets between SIGTERM
// and the escalation signal when stopped via the introspection API.
func DefaultGracePeriod() float64 {
	v := getEnvDefault("GOPROC_GRACE_PERIOD_SECONDS", "3")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 3
	}
	return f
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
