package ratelimit

import (
	"net/http"
	"strings"
)

// unlimited marks requests that never consume tokens
var unlimited = EndpointConfig{}

// MatchEndpoint matches a request path and method to an endpoint configuration.
// Returns the matching EndpointConfig or nil if no match is found.
// Configs whose path ends with "/" match by prefix (e.g., "/runs/" matches "/runs/{id}").
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	// Health checks and CORS preflights are unlimited
	if (path == "/health" && method == http.MethodGet) || method == http.MethodOptions {
		cfg := unlimited
		return &cfg
	}

	for i := range configs {
		if configs[i].Path == path && configs[i].Method == method {
			return &configs[i]
		}
	}

	var best *EndpointConfig
	for i := range configs {
		cfg := &configs[i]
		if cfg.Method != method || !strings.HasSuffix(cfg.Path, "/") || !strings.HasPrefix(path, cfg.Path) {
			continue
		}
		// longest prefix wins
		if best == nil || len(cfg.Path) > len(best.Path) {
			best = cfg
		}
	}
	return best
}
