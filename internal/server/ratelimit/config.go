package ratelimit

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig overrides the default limit for Method requests to Path.
// A Path ending in "/" matches by prefix.
type EndpointConfig struct {
	Path   string
	Method string
	Limit  int
	Window time.Duration
	Burst  int // 0 means Limit
}

// LoadConfig reads RATE_LIMIT_* variables. Malformed values keep their defaults.
func LoadConfig() *Config {
	return loadConfig(os.LookupEnv)
}

func loadConfig(lookup func(string) (string, bool)) *Config {
	env := envReader(lookup)
	if !env.bool("RATE_LIMIT_ENABLED", true) {
		return &Config{Enabled: false}
	}
	return &Config{
		Enabled:         true,
		DefaultLimit:    env.int("RATE_LIMIT_DEFAULT_LIMIT", 1000),
		DefaultWindow:   env.duration("RATE_LIMIT_DEFAULT_WINDOW", time.Minute),
		CleanupInterval: env.duration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		Whitelist:       ipSet(env.string("RATE_LIMIT_WHITELIST")),
		Blacklist:       ipSet(env.string("RATE_LIMIT_BLACKLIST")),
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs keeps run creation scarce: every run crawls the listing site.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		{Path: "/runs", Method: http.MethodPost, Limit: 10, Window: time.Hour, Burst: 2},
		{Path: "/runs/stream", Method: http.MethodPost, Limit: 10, Window: time.Hour, Burst: 2},
		{Path: "/runs/", Method: http.MethodDelete, Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/auth/register", Method: http.MethodPost, Limit: 10, Window: time.Minute, Burst: 3},
		{Path: "/auth/login", Method: http.MethodPost, Limit: 30, Window: time.Minute, Burst: 5},
	}
}

type envReader func(string) (string, bool)

func (e envReader) string(key string) string {
	v, _ := e(key)
	return strings.TrimSpace(v)
}

func (e envReader) int(key string, def int) int {
	if n, err := strconv.Atoi(e.string(key)); err == nil && n > 0 {
		return n
	}
	return def
}

func (e envReader) bool(key string, def bool) bool {
	if b, err := strconv.ParseBool(e.string(key)); err == nil {
		return b
	}
	return def
}

func (e envReader) duration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(e.string(key)); err == nil && d > 0 {
		return d
	}
	return def
}

// ipSet parses a comma-separated address list, dropping entries that are not IPs.
func ipSet(list string) map[string]bool {
	set := make(map[string]bool)
	for _, field := range strings.Split(list, ",") {
		if ip := net.ParseIP(strings.TrimSpace(field)); ip != nil {
			set[ip.String()] = true
		}
	}
	return set
}
