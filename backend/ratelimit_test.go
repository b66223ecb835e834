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
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestRateLimiter_AllowsBurstThenRejects(t *testing.T) {
	limiter := NewRateLimiter([]RateRule{
		{Path: "/api/players", Methods: []string{http.MethodPost}, Rate: rate.Every(time.Hour), Burst: 2},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/players", nil)
	req.Header.Set("x-client-id", "client-1")

	assert.True(t, limiter.Allow(req))
	assert.True(t, limiter.Allow(req))
	assert.False(t, limiter.Allow(req), "burst of 2 should be exhausted on the third request")
}

func TestRateLimiter_SeparatesBucketsByQueryDimension(t *testing.T) {
	limiter := NewRateLimiter([]RateRule{
		{Path: "/api/games", Methods: []string{http.MethodPost}, Rate: rate.Every(time.Hour), Burst: 1, KeyExtractor: QueryKey("date")},
	})

	reqA := httptest.NewRequest(http.MethodPost, "/api/games?date=2026-07-06", nil)
	reqA.Header.Set("x-client-id", "client-1")
	reqB := httptest.NewRequest(http.MethodPost, "/api/games?date=2026-07-13", nil)
	reqB.Header.Set("x-client-id", "client-1")

	assert.True(t, limiter.Allow(reqA))
	assert.True(t, limiter.Allow(reqB), "different date dimension should have its own bucket")
	assert.False(t, limiter.Allow(reqA), "same date dimension should be rate-limited")
}

func TestRateLimiter_UnmatchedRouteAlwaysAllowed(t *testing.T) {
	limiter := NewRateLimiter([]RateRule{
		{Path: "/api/players", Methods: []string{http.MethodPost}, Rate: rate.Every(time.Hour), Burst: 1},
	})
	req := httptest.NewRequest(http.MethodGet, "/api/teams", nil)
	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow(req))
	}
}
