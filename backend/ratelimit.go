// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// RateRule configures one token-bucket limit (refilling at Rate, holding at
// most Burst tokens; not a sliding-window count), keyed by a caller identity
// plus an optional query-dimension extractor so e.g. the games endpoint
// can rate-limit per (client, date) rather than per client alone (spec
// §4.J).
type RateRule struct {
	Path          string
	Methods       []string
	Rate          rate.Limit
	Burst         int
	KeyExtractor  func(r *http.Request) string
}

func (rl RateRule) matches(r *http.Request) bool {
	if rl.Path != r.URL.Path {
		return false
	}
	if len(rl.Methods) == 0 {
		return true
	}
	for _, m := range rl.Methods {
		if m == r.Method {
			return true
		}
	}
	return false
}

func (rl RateRule) dimension(r *http.Request) string {
	if rl.KeyExtractor == nil {
		return ""
	}
	return rl.KeyExtractor(r)
}

// QueryKey builds a KeyExtractor that reads a single URL query parameter,
// e.g. QueryKey("date") buckets the limiter by ?date=.
func QueryKey(param string) func(*http.Request) string {
	return func(r *http.Request) string {
		return r.URL.Query().Get(param)
	}
}

// RateLimiter enforces per-rule token buckets keyed by caller identity
// and an optional query dimension, rejecting before any side effect runs
// (spec §4.J).
type RateLimiter struct {
	rules    []RateRule
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter builds a limiter over the given rules.
func NewRateLimiter(rules []RateRule) *RateLimiter {
	return &RateLimiter{rules: rules, limiters: map[string]*rate.Limiter{}}
}

func callerIdentity(r *http.Request) string {
	if clientId := r.Header.Get("x-client-id"); clientId != "" {
		return clientId
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}

func (l *RateLimiter) limiterFor(rule RateRule, key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[key]; ok {
		return lim
	}
	lim := rate.NewLimiter(rule.Rate, rule.Burst)
	l.limiters[key] = lim
	return lim
}

// Allow reports whether r is permitted under the first matching rule. A
// request matching no rule is always allowed.
func (l *RateLimiter) Allow(r *http.Request) bool {
	for _, rule := range l.rules {
		if !rule.matches(r) {
			continue
		}
		key := rule.Path + "\x00" + callerIdentity(r) + "\x00" + rule.dimension(r)
		return l.limiterFor(rule, key).Allow()
	}
	return true
}

// Middleware wraps next, rejecting with RateLimitExceeded before next ever
// runs (spec §7: rate limiting happens before any side effect).
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(r) {
			WriteError(w, RateLimitedf("rate limit exceeded for %s", r.URL.Path))
			return
		}
		next.ServeHTTP(w, r)
	})
}
