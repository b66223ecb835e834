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
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Server wires together the store, directory, and domain engines behind
// one HTTP handler (spec §6). Its shape follows the teacher's Options +
// mux pattern: a struct of dependencies, a constructor that builds routes,
// and a single http.Handler exposed to the caller.
type Server struct {
	cfg       Config
	log       *zap.Logger
	store     *Store
	directory *Directory
	settings  *SettingsResolver
	players   *PlayerManager
	scheduler *Scheduler
	bracket   *Bracket
	teamgen   *TeamGenerator
	rankings  *RankingEngine
	limiter   *RateLimiter
	mux       *http.ServeMux
}

// NewServer builds a fully wired Server rooted at cfg.DataDir.
func NewServer(cfg Config, log *zap.Logger) *Server {
	store := NewStore(cfg.DataDir)
	directory := NewDirectory(store, []byte(cfg.ResetTokenSecret))
	settings := NewSettingsResolver(store)
	players := NewPlayerManager(store, settings, func(leagueId string) (string, error) {
		return cfg.ResetTokenSecret, nil
	})

	limiter := NewRateLimiter([]RateRule{
		{Path: "/api/players", Methods: []string{http.MethodPost}, Rate: rate.Every(time.Second), Burst: 5},
		{Path: "/api/games", Methods: []string{http.MethodPost, http.MethodPut}, Rate: rate.Every(2 * time.Second), Burst: 3, KeyExtractor: QueryKey("date")},
		{Path: "/api/leagues/authenticate", Methods: []string{http.MethodPost}, Rate: rate.Every(5 * time.Second), Burst: 3},
		{Path: "/api/leagues/reset-access-code", Methods: []string{http.MethodPost}, Rate: rate.Every(time.Minute), Burst: 2},
	})

	s := &Server{
		cfg:       cfg,
		log:       log,
		store:     store,
		directory: directory,
		settings:  settings,
		players:   players,
		scheduler: NewScheduler(),
		bracket:   NewBracket(),
		teamgen:   NewTeamGenerator(),
		rankings:  NewRankingEngine(store),
		limiter:   limiter,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the fully wrapped handler: CORS, body-size limiting,
// request logging, auth, and rate limiting, from outermost to innermost
// around the route mux (spec §6, §7).
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.limiter.Middleware(h)
	h = AuthMiddleware(s.cfg.APIKey, s.directory, h)
	h = s.loggingMiddleware(h)
	h = s.bodyLimitMiddleware(h)

	c := cors.New(cors.Options{
		AllowOriginFunc:  func(origin string) bool { return OriginAllowed(origin, s.cfg.AllowedOrigins) },
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "x-api-key", "x-client-id", "x-admin-code"},
		AllowCredentials: false,
	})
	return c.Handler(h)
}

func (s *Server) bodyLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.BodySizeLimit > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.BodySizeLimit)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return Validationf("malformed request body: %s", err.Error())
	}
	return nil
}

// decodeJSONOptional is decodeJSON for endpoints whose body is entirely
// optional (every field defaults sensibly): an empty body leaves dst at its
// zero value instead of erroring.
func decodeJSONOptional(r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return Validationf("malformed request body: %s", err.Error())
	}
	return nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/leagues", s.handleLeagues)
	s.mux.HandleFunc("/api/leagues/authenticate", s.handleAuthenticate)
	s.mux.HandleFunc("/api/leagues/reset-access-code", s.handleResetAccessCode)

	s.mux.HandleFunc("/api/players", s.handlePlayers)
	s.mux.HandleFunc("/api/players/move", s.handleMovePlayer)

	s.mux.HandleFunc("/api/teams", s.handleTeams)
	s.mux.HandleFunc("/api/teams/configurations", s.handleTeamConfigurations)
	s.mux.HandleFunc("/api/teams/draw-history", s.handleDrawHistory)
	s.mux.HandleFunc("/api/teams/assign", s.handleAssignToTeam)
	s.mux.HandleFunc("/api/teams/remove", s.handleRemoveFromTeam)

	s.mux.HandleFunc("/api/games", s.handleGames)
	s.mux.HandleFunc("/api/games/score", s.handleScore)
	s.mux.HandleFunc("/api/games/knockout", s.handleKnockout)
	s.mux.HandleFunc("/api/games/knockout/advance", s.handleKnockoutAdvance)

	s.mux.HandleFunc("/api/rankings/recompute", s.handleRankingsRecompute)

	s.mux.HandleFunc("/api/rankings", s.handleRankings)
	s.mux.HandleFunc("/api/rankings/", s.handlePlayerRankings)
	s.mux.HandleFunc("/api/champions", s.handleChampions)
	s.mux.HandleFunc("/api/golden-boot", s.handleGoldenBoot)
	s.mux.HandleFunc("/api/year-in-review/", s.handleYearInReview)
}

func requestContextOrError(w http.ResponseWriter, r *http.Request) (RequestContext, bool) {
	rc, ok := FromContext(r.Context())
	if !ok {
		WriteError(w, IOErrorf(nil, "missing request context"))
		return RequestContext{}, false
	}
	return rc, true
}

func dateParam(r *http.Request) string {
	return r.URL.Query().Get("date")
}

func (s *Server) handleLeagues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, Validationf("method %s not allowed", r.Method))
		return
	}
	var req LeagueCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := ValidateStruct(req); err != nil {
		WriteError(w, err)
		return
	}
	league, err := s.directory.Create(req.ID, req.DisplayName, req.OwnerEmail)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, league)
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, Validationf("method %s not allowed", r.Method))
		return
	}
	rc, ok := requestContextOrError(w, r)
	if !ok {
		return
	}
	var req LeagueAuthenticateRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := ValidateStruct(req); err != nil {
		WriteError(w, err)
		return
	}
	if err := s.directory.Authenticate(rc.LeagueID, req.AccessCode); err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleResetAccessCode(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContextOrError(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		token, err := s.directory.IssueResetToken(rc.LeagueID)
		if err != nil {
			WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	case http.MethodPost:
		var req ResetAccessCodeRequest
		if err := decodeJSON(r, &req); err != nil {
			WriteError(w, err)
			return
		}
		code, err := s.directory.RotateAccessCode(rc.LeagueID, req.Token)
		if err != nil {
			WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"accessCode": code})
	default:
		WriteError(w, Validationf("method %s not allowed", r.Method))
	}
}

func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContextOrError(w, r)
	if !ok {
		return
	}
	date := dateParam(r)
	if !ValidDate(date) {
		WriteError(w, Validationf("invalid or missing date"))
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req AddPlayerRequest
		if err := decodeJSON(r, &req); err != nil {
			WriteError(w, err)
			return
		}
		if err := ValidateStruct(req); err != nil {
			WriteError(w, err)
			return
		}
		list := ListAvailable
		if req.List == string(ListWaitingList) {
			list = ListWaitingList
		}
		lists, err := s.players.AddPlayer(rc.LeagueID, date, req.Name, list, rc.ClientID)
		if err != nil {
			WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, lists)
	case http.MethodDelete:
		name := r.URL.Query().Get("name")
		lists, err := s.players.RemovePlayer(rc.LeagueID, date, name, rc.ClientID, rc.IsAdmin)
		if err != nil {
			WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lists)
	default:
		WriteError(w, Validationf("method %s not allowed", r.Method))
	}
}

func (s *Server) handleMovePlayer(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContextOrError(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		WriteError(w, Validationf("method %s not allowed", r.Method))
		return
	}
	date := dateParam(r)
	if !ValidDate(date) {
		WriteError(w, Validationf("invalid or missing date"))
		return
	}
	var req MovePlayerRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := ValidateStruct(req); err != nil {
		WriteError(w, err)
		return
	}
	lists, err := s.players.MovePlayer(rc.LeagueID, date, req.Name, List(req.From), List(req.To), rc.ClientID, rc.IsAdmin)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

func (s *Server) handleAssignToTeam(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContextOrError(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		WriteError(w, Validationf("method %s not allowed", r.Method))
		return
	}
	date := dateParam(r)
	if !ValidDate(date) {
		WriteError(w, Validationf("invalid or missing date"))
		return
	}
	var req AssignToTeamRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := ValidateStruct(req); err != nil {
		WriteError(w, err)
		return
	}
	teams, err := s.players.AssignToTeam(rc.LeagueID, date, req.Name, req.TeamName)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

// RemoveFromTeamRequest is the wire DTO for clearing a player's team slot.
type RemoveFromTeamRequest struct {
	Name     string `json:"name" validate:"required,max=64"`
	TeamName string `json:"teamName" validate:"required,max=64"`
	Action   string `json:"action" validate:"omitempty,oneof=waitingList remove no-show"`
}

func (s *Server) handleRemoveFromTeam(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContextOrError(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		WriteError(w, Validationf("method %s not allowed", r.Method))
		return
	}
	date := dateParam(r)
	if !ValidDate(date) {
		WriteError(w, Validationf("invalid or missing date"))
		return
	}
	var req RemoveFromTeamRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := ValidateStruct(req); err != nil {
		WriteError(w, err)
		return
	}
	action := RemovalAction(req.Action)
	if action == "" {
		action = ActionToWaitingList
	}
	teams, lists, err := s.players.RemoveFromTeam(rc.LeagueID, date, req.Name, req.TeamName, action)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"teams": teams, "players": lists})
}

func (s *Server) handleTeams(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContextOrError(w, r)
	if !ok {
		return
	}
	date := dateParam(r)
	if !ValidDate(date) {
		WriteError(w, Validationf("invalid or missing date"))
		return
	}
	if r.Method != http.MethodGet {
		WriteError(w, Validationf("method %s not allowed", r.Method))
		return
	}
	raw, err := s.store.Get(rc.LeagueID, date, "teams")
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

func (s *Server) handleTeamConfigurations(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContextOrError(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		WriteError(w, Validationf("method %s not allowed", r.Method))
		return
	}
	date := dateParam(r)
	if !ValidDate(date) {
		WriteError(w, Validationf("invalid or missing date"))
		return
	}

	settings, err := s.settings.Resolve(rc.LeagueID, date)
	if err != nil {
		WriteError(w, err)
		return
	}
	playersRaw, err := s.store.Get(rc.LeagueID, date, "players")
	if err != nil {
		WriteError(w, err)
		return
	}
	var lists PlayerLists
	if playersRaw != nil {
		if err := json.Unmarshal(playersRaw, &lists); err != nil {
			WriteError(w, ParseErrorf(err, "session %s/%s players corrupt", rc.LeagueID, date))
			return
		}
	}

	yearRankings := map[string]*PlayerYearStats{}
	if rankingsRaw, err := s.store.Get(rc.LeagueID, "", rankingsKey(currentYear(rc))); err != nil {
		WriteError(w, err)
		return
	} else if rankingsRaw != nil {
		var yr YearRankings
		if err := json.Unmarshal(rankingsRaw, &yr); err == nil {
			yearRankings = yr.Players
		}
	}

	ratings := make([]PlayerRating, len(lists.Available))
	for i, name := range lists.Available {
		rating := eloBaseRating
		if stats, ok := yearRankings[name]; ok {
			rating = stats.ELO.Rating
		}
		ratings[i] = PlayerRating{Name: name, Rating: rating}
	}

	historyRaw, err := s.store.Get(rc.LeagueID, date, "teammateHistory")
	if err != nil {
		WriteError(w, err)
		return
	}
	history := teammateHistory{}
	if historyRaw != nil {
		var pairs map[string]int
		if err := json.Unmarshal(historyRaw, &pairs); err == nil {
			for k, v := range pairs {
				parts := strings.SplitN(k, "\x1f", 2)
				if len(parts) == 2 {
					history[pairKey(parts[0], parts[1])] = v
				}
			}
		}
	}

	teams, trace, err := s.teamgen.Generate(ratings, settings.TeamSizes, settings.Colours, settings.Method, history)
	if err != nil {
		WriteError(w, err)
		return
	}
	teamsRaw, err := MarshalTeams(teams)
	if err != nil {
		WriteError(w, err)
		return
	}
	traceRaw, err := json.Marshal(trace)
	if err != nil {
		WriteError(w, IOErrorf(err, "marshalling draw trace"))
		return
	}
	historyOut := make(map[string]int, len(history))
	for pair, count := range history {
		historyOut[pair[0]+"\x1f"+pair[1]] = count
	}
	historyOutRaw, err := json.Marshal(historyOut)
	if err != nil {
		WriteError(w, IOErrorf(err, "marshalling teammate history"))
		return
	}
	if err := s.store.SetMany(rc.LeagueID, date, []Operation{
		{Kind: OpSet, Key: "teams", Value: teamsRaw, Options: SetOptions{Overwrite: true}},
		{Kind: OpSet, Key: "drawHistory", Value: traceRaw, Options: SetOptions{Overwrite: true}},
		{Kind: OpSet, Key: "teammateHistory", Value: historyOutRaw, Options: SetOptions{Overwrite: true}},
	}); err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

func (s *Server) handleDrawHistory(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContextOrError(w, r)
	if !ok {
		return
	}
	date := dateParam(r)
	if !ValidDate(date) {
		WriteError(w, Validationf("invalid or missing date"))
		return
	}
	raw, err := s.store.Get(rc.LeagueID, date, "drawHistory")
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContextOrError(w, r)
	if !ok {
		return
	}
	date := dateParam(r)
	if !ValidDate(date) {
		WriteError(w, Validationf("invalid or missing date"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		raw, err := s.store.Get(rc.LeagueID, date, "games")
		if err != nil {
			WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, raw)
	case http.MethodPost:
		var req GenerateGamesRequest
		if err := decodeJSONOptional(r, &req); err != nil {
			WriteError(w, err)
			return
		}
		if err := ValidateStruct(req); err != nil {
			WriteError(w, err)
			return
		}

		teamsRaw, err := s.store.Get(rc.LeagueID, date, "teams")
		if err != nil {
			WriteError(w, err)
			return
		}
		var teams []Team
		if teamsRaw != nil {
			if err := json.Unmarshal(teamsRaw, &teams); err != nil {
				WriteError(w, ParseErrorf(err, "session %s/%s teams corrupt", rc.LeagueID, date))
				return
			}
		}
		names := make([]string, len(teams))
		for i, t := range teams {
			names[i] = t.Name
		}

		anchorIndex := -1
		if req.AnchorIndex != nil {
			anchorIndex = *req.AnchorIndex
		}

		var existingGames Games
		if gamesRaw, err := s.store.Get(rc.LeagueID, date, "games"); err != nil {
			WriteError(w, err)
			return
		} else if gamesRaw != nil {
			if err := json.Unmarshal(gamesRaw, &existingGames); err != nil {
				WriteError(w, ParseErrorf(err, "session %s/%s games corrupt", rc.LeagueID, date))
				return
			}
		}

		var rounds [][]ScheduleMatch
		if req.AddMore > 0 {
			existing := req.ExistingRounds
			if existing == nil {
				existing = existingGames.Rounds
			}
			rounds, err = s.scheduler.AddMoreRounds(names, existing, req.AddMore, anchorIndex)
		} else {
			rounds, err = s.scheduler.GenerateSchedule(names, req.Rounds == 2, anchorIndex)
		}
		if err != nil {
			WriteError(w, err)
			return
		}

		games := Games{Rounds: rounds, Knockout: existingGames.Knockout}
		raw, err := json.Marshal(games)
		if err != nil {
			WriteError(w, IOErrorf(err, "marshalling games"))
			return
		}
		if err := s.store.Set(rc.LeagueID, date, "games", raw, SetOptions{Overwrite: true}); err != nil {
			WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, games)
	default:
		WriteError(w, Validationf("method %s not allowed", r.Method))
	}
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContextOrError(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPut {
		WriteError(w, Validationf("method %s not allowed", r.Method))
		return
	}
	date := dateParam(r)
	if !ValidDate(date) {
		WriteError(w, Validationf("invalid or missing date"))
		return
	}
	roundIdx, err := strconv.Atoi(r.URL.Query().Get("round"))
	if err != nil {
		WriteError(w, Validationf("invalid round index"))
		return
	}
	matchIdx, err := strconv.Atoi(r.URL.Query().Get("match"))
	if err != nil {
		WriteError(w, Validationf("invalid match index"))
		return
	}
	var req ScoreEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := ValidateScoreEntry(req); err != nil {
		WriteError(w, err)
		return
	}

	gamesRaw, err := s.store.Get(rc.LeagueID, date, "games")
	if err != nil {
		WriteError(w, err)
		return
	}
	var games Games
	if gamesRaw != nil {
		if err := json.Unmarshal(gamesRaw, &games); err != nil {
			WriteError(w, ParseErrorf(err, "session %s/%s games corrupt", rc.LeagueID, date))
			return
		}
	}
	if roundIdx < 0 || roundIdx >= len(games.Rounds) || matchIdx < 0 || matchIdx >= len(games.Rounds[roundIdx]) {
		WriteError(w, NotFoundf("no such round/match"))
		return
	}
	m := &games.Rounds[roundIdx][matchIdx]
	m.HomeScore = &req.HomeScore
	m.AwayScore = &req.AwayScore
	m.HomeScorers = req.HomeScorers
	m.AwayScorers = req.AwayScorers

	raw, err := json.Marshal(games)
	if err != nil {
		WriteError(w, IOErrorf(err, "marshalling games"))
		return
	}
	if err := s.store.Set(rc.LeagueID, date, "games", raw, SetOptions{Overwrite: true}); err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

func currentYear(rc RequestContext) int {
	return rc.Now.Year()
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContextOrError(w, r)
	if !ok {
		return
	}
	year := currentYear(rc)
	if y := r.URL.Query().Get("year"); y != "" {
		if parsed, err := strconv.Atoi(y); err == nil {
			year = parsed
		}
	}
	raw, err := s.store.Get(rc.LeagueID, "", rankingsKey(year))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

func (s *Server) handlePlayerRankings(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContextOrError(w, r)
	if !ok {
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/rankings/")
	if name == "" {
		WriteError(w, Validationf("player name required"))
		return
	}
	year := currentYear(rc)
	raw, err := s.store.Get(rc.LeagueID, "", rankingsKey(year))
	if err != nil {
		WriteError(w, err)
		return
	}
	if raw == nil {
		WriteError(w, NotFoundf("no rankings computed for %d", year))
		return
	}
	var yr YearRankings
	if err := json.Unmarshal(raw, &yr); err != nil {
		WriteError(w, ParseErrorf(err, "league %q rankings %d corrupt", rc.LeagueID, year))
		return
	}
	stats, ok := yr.Players[name]
	if !ok {
		WriteError(w, NotFoundf("no ranking entry for %q", name))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleChampions(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContextOrError(w, r)
	if !ok {
		return
	}
	// With a numeric year, lists every player with at least one cup win in
	// that year's rankings. Years are not combined: without a year the list
	// is empty, and year=all is rejected as an invalid year.
	year := r.URL.Query().Get("year")
	type entry struct {
		Year int    `json:"year"`
		Name string `json:"name"`
	}
	var out []entry
	if year != "" {
		y, err := strconv.Atoi(year)
		if err != nil {
			WriteError(w, Validationf("invalid year"))
			return
		}
		raw, err := s.store.Get(rc.LeagueID, "", rankingsKey(y))
		if err != nil {
			WriteError(w, err)
			return
		}
		if raw != nil {
			var yr YearRankings
			if err := json.Unmarshal(raw, &yr); err == nil {
				for name, stats := range yr.Players {
					if stats.CupWins > 0 {
						out = append(out, entry{Year: y, Name: name})
					}
				}
			}
		}
		writeJSON(w, http.StatusOK, out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGoldenBoot(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContextOrError(w, r)
	if !ok {
		return
	}
	year := currentYear(rc)
	if y := r.URL.Query().Get("year"); y != "" {
		if parsed, err := strconv.Atoi(y); err == nil {
			year = parsed
		}
	}
	raw, err := s.store.Get(rc.LeagueID, "", rankingsKey(year))
	if err != nil {
		WriteError(w, err)
		return
	}
	if raw == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	var yr YearRankings
	if err := json.Unmarshal(raw, &yr); err != nil {
		WriteError(w, ParseErrorf(err, "league %q rankings %d corrupt", rc.LeagueID, year))
		return
	}
	var top *PlayerYearStats
	for _, stats := range yr.Players {
		if top == nil || stats.GoalsScored > top.GoalsScored {
			top = stats
		}
	}
	writeJSON(w, http.StatusOK, top)
}

func (s *Server) handleYearInReview(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContextOrError(w, r)
	if !ok {
		return
	}
	yearStr := strings.TrimPrefix(r.URL.Path, "/api/year-in-review/")
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		WriteError(w, Validationf("invalid year %q", yearStr))
		return
	}
	raw, err := s.store.Get(rc.LeagueID, "", rankingsKey(year))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

func (s *Server) handleKnockout(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContextOrError(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		WriteError(w, Validationf("method %s not allowed", r.Method))
		return
	}
	date := dateParam(r)
	if !ValidDate(date) {
		WriteError(w, Validationf("invalid or missing date"))
		return
	}
	teamsRaw, err := s.store.Get(rc.LeagueID, date, "teams")
	if err != nil {
		WriteError(w, err)
		return
	}
	var teams []Team
	if teamsRaw != nil {
		if err := json.Unmarshal(teamsRaw, &teams); err != nil {
			WriteError(w, ParseErrorf(err, "session %s/%s teams corrupt", rc.LeagueID, date))
			return
		}
	}
	names := make([]string, len(teams))
	for i, t := range teams {
		names[i] = t.Name
	}
	round, err := s.bracket.Generate(names)
	if err != nil {
		WriteError(w, err)
		return
	}

	gamesRaw, err := s.store.Get(rc.LeagueID, date, "games")
	if err != nil {
		WriteError(w, err)
		return
	}
	var games Games
	if gamesRaw != nil {
		if err := json.Unmarshal(gamesRaw, &games); err != nil {
			WriteError(w, ParseErrorf(err, "session %s/%s games corrupt", rc.LeagueID, date))
			return
		}
	}
	games.Knockout = round
	raw2, err := json.Marshal(games)
	if err != nil {
		WriteError(w, IOErrorf(err, "marshalling games"))
		return
	}
	if err := s.store.Set(rc.LeagueID, date, "games", raw2, SetOptions{Overwrite: true}); err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, round)
}

func (s *Server) handleKnockoutAdvance(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContextOrError(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		WriteError(w, Validationf("method %s not allowed", r.Method))
		return
	}
	date := dateParam(r)
	if !ValidDate(date) {
		WriteError(w, Validationf("invalid or missing date"))
		return
	}
	gamesRaw, err := s.store.Get(rc.LeagueID, date, "games")
	if err != nil {
		WriteError(w, err)
		return
	}
	if gamesRaw == nil {
		WriteError(w, NotFoundf("no games recorded for %s", date))
		return
	}
	var games Games
	if err := json.Unmarshal(gamesRaw, &games); err != nil {
		WriteError(w, ParseErrorf(err, "session %s/%s games corrupt", rc.LeagueID, date))
		return
	}
	if len(games.Knockout) == 0 {
		WriteError(w, Conflictf("no knockout bracket generated for %s", date))
		return
	}

	lastRoundName := games.Knockout[len(games.Knockout)-1].Round
	currentRound := roundByName(games.Knockout, lastRoundName)
	next, err := s.bracket.AdvanceRound(currentRound)
	if err != nil {
		WriteError(w, err)
		return
	}
	if next != nil {
		games.Knockout = append(games.Knockout, next...)
	}

	raw, err := json.Marshal(games)
	if err != nil {
		WriteError(w, IOErrorf(err, "marshalling games"))
		return
	}
	if err := s.store.Set(rc.LeagueID, date, "games", raw, SetOptions{Overwrite: true}); err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

func roundByName(matches []KnockoutMatch, name string) []KnockoutMatch {
	var out []KnockoutMatch
	for _, m := range matches {
		if m.Round == name {
			out = append(out, m)
		}
	}
	return out
}

func (s *Server) handleRankingsRecompute(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContextOrError(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		WriteError(w, Validationf("method %s not allowed", r.Method))
		return
	}
	if !rc.IsAdmin {
		WriteError(w, Forbiddenf("recomputing rankings requires an admin code"))
		return
	}
	year := currentYear(rc)
	if y := r.URL.Query().Get("year"); y != "" {
		parsed, err := strconv.Atoi(y)
		if err != nil {
			WriteError(w, Validationf("invalid year %q", y))
			return
		}
		year = parsed
	}

	dates, err := s.store.SessionDates(rc.LeagueID)
	if err != nil {
		WriteError(w, err)
		return
	}
	var yearDates []string
	for _, d := range dates {
		if strings.HasPrefix(d, strconv.Itoa(year)+"-") {
			yearDates = append(yearDates, d)
		}
	}

	result, err := s.rankings.Recompute(rc.LeagueID, year, yearDates)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
