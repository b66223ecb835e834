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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*Server, Config) {
	t.Helper()
	cfg := Config{
		DataDir:          t.TempDir(),
		APIKey:           "test-api-key",
		ResetTokenSecret: "test-reset-secret",
		BodySizeLimit:    1 << 20,
		AllowedOrigins:   []string{"*.example.com"},
	}
	return NewServer(cfg, zap.NewNop()), cfg
}

func doRequest(t *testing.T, handler http.Handler, method, host, path string, clientID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Host = host
	req.Header.Set("x-api-key", "test-api-key")
	req.Header.Set("x-client-id", clientID)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_CreateLeagueAndAddPlayer(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()
	client := uuid.NewString()

	rec := doRequest(t, handler, http.MethodPost, "acme.example.com", "/api/leagues", client, LeagueCreateRequest{
		ID: "acme", DisplayName: "Acme League", OwnerEmail: "owner@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var league League
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &league))

	buf := new(bytes.Buffer)
	require.NoError(t, json.NewEncoder(buf).Encode(AddPlayerRequest{Name: "Alice"}))
	addReq := httptest.NewRequest(http.MethodPost, "/api/players?date=2026-07-06", buf)
	addReq.Host = "acme.example.com"
	addReq.Header.Set("x-api-key", "test-api-key")
	addReq.Header.Set("x-client-id", client)
	addReq.Header.Set("Authorization", "Bearer "+league.AccessCode)
	addReq.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, addReq)

	require.Equal(t, http.StatusCreated, rec.Code)
	var lists PlayerLists
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lists))
	assert.Equal(t, []string{"Alice"}, lists.Available)
}

func TestServer_RejectsMissingAPIKey(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/leagues", nil)
	req.Host = "acme.example.com"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_RejectsUnknownLeague(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()
	client := uuid.NewString()

	rec := doRequest(t, handler, http.MethodGet, "nosuchleague.example.com", "/api/teams?date=2026-07-06", client, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func authedRequest(t *testing.T, handler http.Handler, method, host, path, accessCode, adminCode string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Host = host
	req.Header.Set("x-api-key", "test-api-key")
	req.Header.Set("x-client-id", uuid.NewString())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessCode)
	if adminCode != "" {
		req.Header.Set("x-admin-code", adminCode)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_KnockoutGenerateThenAdvance(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()
	host := "acme.example.com"

	client := uuid.NewString()
	rec := doRequest(t, handler, http.MethodPost, host, "/api/leagues", client, LeagueCreateRequest{
		ID: "acme", DisplayName: "Acme League", OwnerEmail: "owner@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var league League
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &league))

	teams := []Team{{Name: "Red"}, {Name: "Blue"}, {Name: "Green"}, {Name: "Yellow"}}
	raw, _ := json.Marshal(teams)
	require.NoError(t, srv.store.Set("acme", "2026-07-06", "teams", raw, SetOptions{Overwrite: true}))

	rec = authedRequest(t, handler, http.MethodPost, host, "/api/games/knockout?date=2026-07-06", league.AccessCode, "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var round []KnockoutMatch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &round))
	require.Len(t, round, 2)

	for i := range round {
		score := 1
		round[i].HomeScore = &score
		zero := 0
		round[i].AwayScore = &zero
	}
	gamesRaw, err := srv.store.Get("acme", "2026-07-06", "games")
	require.NoError(t, err)
	var games Games
	require.NoError(t, json.Unmarshal(gamesRaw, &games))
	games.Knockout = round
	raw2, _ := json.Marshal(games)
	require.NoError(t, srv.store.Set("acme", "2026-07-06", "games", raw2, SetOptions{Overwrite: true}))

	rec = authedRequest(t, handler, http.MethodPost, host, "/api/games/knockout/advance?date=2026-07-06", league.AccessCode, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var advanced Games
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &advanced))
	assert.Greater(t, len(advanced.Knockout), len(round))
}

func TestServer_GamesGenerateHonoursAnchorAndDoubleRounds(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()
	host := "acme.example.com"

	client := uuid.NewString()
	rec := doRequest(t, handler, http.MethodPost, host, "/api/leagues", client, LeagueCreateRequest{
		ID: "acme", DisplayName: "Acme League", OwnerEmail: "owner@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var league League
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &league))

	teams := []Team{{Name: "A"}, {Name: "B"}, {Name: "C"}, {Name: "D"}}
	raw, _ := json.Marshal(teams)
	require.NoError(t, srv.store.Set("acme", "2026-07-06", "teams", raw, SetOptions{Overwrite: true}))

	anchor := 0
	rec = authedRequest(t, handler, http.MethodPost, host, "/api/games?date=2026-07-06", league.AccessCode, "",
		GenerateGamesRequest{AnchorIndex: &anchor, Rounds: 2})
	require.Equal(t, http.StatusCreated, rec.Code)
	var games Games
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &games))
	require.Len(t, games.Rounds, 6)
	assert.Equal(t, "A", games.Rounds[0][0].Home)
	assert.Equal(t, "D", games.Rounds[0][0].Away)
}

func TestServer_GamesGenerateAddMoreExtendsStoredSchedule(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()
	host := "acme.example.com"

	client := uuid.NewString()
	rec := doRequest(t, handler, http.MethodPost, host, "/api/leagues", client, LeagueCreateRequest{
		ID: "acme", DisplayName: "Acme League", OwnerEmail: "owner@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var league League
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &league))

	teams := []Team{{Name: "Red"}, {Name: "Blue"}, {Name: "Green"}, {Name: "Yellow"}}
	raw, _ := json.Marshal(teams)
	require.NoError(t, srv.store.Set("acme", "2026-07-06", "teams", raw, SetOptions{Overwrite: true}))

	anchor := 0
	rec = authedRequest(t, handler, http.MethodPost, host, "/api/games?date=2026-07-06", league.AccessCode, "",
		GenerateGamesRequest{AnchorIndex: &anchor})
	require.Equal(t, http.StatusCreated, rec.Code)
	var initial Games
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &initial))
	require.Len(t, initial.Rounds, 3)

	rec = authedRequest(t, handler, http.MethodPost, host, "/api/games?date=2026-07-06", league.AccessCode, "",
		GenerateGamesRequest{AnchorIndex: &anchor, AddMore: 2})
	require.Equal(t, http.StatusCreated, rec.Code)
	var extended Games
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &extended))
	require.Len(t, extended.Rounds, 5)
	assert.Equal(t, initial.Rounds, extended.Rounds[:3])
}

func TestServer_RankingsRecomputeRequiresAdmin(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()
	host := "acme.example.com"

	client := uuid.NewString()
	rec := doRequest(t, handler, http.MethodPost, host, "/api/leagues", client, LeagueCreateRequest{
		ID: "acme", DisplayName: "Acme League", OwnerEmail: "owner@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var league League
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &league))

	rec = authedRequest(t, handler, http.MethodPost, host, "/api/rankings/recompute?year=2026", league.AccessCode, "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Create issues no admin code, so one is stored on the league document
	// directly before the admin request.
	adminCode := "ADMN-0000-0001"
	adminRaw, _ := json.Marshal(adminCode)
	require.NoError(t, srv.store.Set("acme", "", "adminCode", adminRaw, SetOptions{Overwrite: true}))

	rec = authedRequest(t, handler, http.MethodPost, host, "/api/rankings/recompute?year=2026", league.AccessCode, adminCode, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
