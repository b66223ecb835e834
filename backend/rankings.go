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
	"math"
	"sort"
	"time"
)

const (
	leagueWinPoints  = 3
	leagueDrawPoints = 1
	leagueLossPoints = 0
	appearancePoints = 1

	eloBaseRating   = 1000.0
	eloLeagueK      = 24.0
	eloKnockoutK    = 15.0
	decayPerWeek    = 0.98
	confidenceConst = 5.0 // C in the hybrid weighted-average formula
)

// leagueBonusByRank awards extra league points by final league-table
// position (spec §4.I): 1st through 4th get a standings bonus on top of
// match points, tapering to zero.
var leagueBonusByRank = map[int]int{1: 10, 2: 6, 3: 3, 4: 1}

// knockoutPointsByRound awards points for how far a team progressed in the
// knockout stage (spec §4.I).
var knockoutPointsByRound = map[string]int{
	"round-of-16": 1,
	"quarter":     2,
	"semi":        4,
	"final":       6,
}

const knockoutWinPoints = 10 // additional points for winning the final (cupWins)

// EloState is a player's carried-over rating state (spec §4.I step 2: the
// whole ELO state — rating, gamesPlayed and lastDecayAt — survives a year
// boundary, never points or rank).
type EloState struct {
	Rating      float64 `json:"rating"`
	GamesPlayed int     `json:"gamesPlayed"`
	LastDecayAt string  `json:"lastDecayAt"`
}

// RankingBreakdown is one session's contribution to a player's year totals,
// recorded per date in PlayerYearStats.RankingDetail so a client can show
// "what changed this week" without replaying the whole year.
type RankingBreakdown struct {
	PointsDelta int     `json:"pointsDelta"`
	EloDelta    float64 `json:"eloDelta"`
}

// PlayerYearStats is one player's accumulated record for a single
// calendar year (spec §3's rankings sub-key).
type PlayerYearStats struct {
	Name                     string                       `json:"name"`
	Appearances              int                          `json:"appearances"`
	RawPoints                int                          `json:"rawPoints"`
	GoalsScored              int                          `json:"goalsScored"`
	LeagueWins               int                           `json:"leagueWins"`
	CupWins                  int                          `json:"cupWins"`
	ELO                      EloState                     `json:"elo"`
	LastPlayedAt             string                       `json:"lastPlayedAt"`
	RawAverage               float64                      `json:"rawAverage"`
	WeightedRating           float64                      `json:"weightedAverage"`
	RankingPoints            float64                      `json:"rankingPoints"`
	HasFullConfidence        bool                         `json:"hasFullConfidence"`
	GamesUntilFullConfidence int                          `json:"gamesUntilFullConfidence,omitempty"`
	RankingDetail            map[string]RankingBreakdown  `json:"rankingDetail,omitempty"`
	Rank                     int                          `json:"rank"`
	RankMovement             int                          `json:"rankMovement"`
}

// RankingMetadata carries the document-level inputs to the hybrid rating
// formula (spec §3), so a client can reproduce rankingPoints from rawPoints
// without re-deriving globalAverage itself.
type RankingMetadata struct {
	GlobalAverage       float64 `json:"globalAverage"`
	ConfidenceThreshold float64 `json:"confidenceThreshold"`
}

// YearRankings is the computed rankings document for one league-year (spec
// §3, §4.I).
type YearRankings struct {
	Year            int                        `json:"year"`
	Players         map[string]*PlayerYearStats `json:"players"`
	GlobalAverage   float64                    `json:"globalAverage"`
	ComputedThrough string                     `json:"computedThrough"`
	CalculatedDates []string                   `json:"calculatedDates"`
	RankingMetadata RankingMetadata            `json:"rankingMetadata"`
	LastUpdated     string                     `json:"lastUpdated"`
}

// RankingEngine recomputes year-partitioned rankings by replaying a
// league's sessions in chronological order, with ELO carried over across
// year boundaries (spec §4.I).
type RankingEngine struct {
	store *Store
}

// NewRankingEngine creates an engine backed by store.
func NewRankingEngine(store *Store) *RankingEngine {
	return &RankingEngine{store: store}
}

func eloExpected(self, opp float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (opp-self)/400))
}

// weekEpoch truncates t to the most recent Monday 00:00 UTC, the decay
// epoch boundary decided for this engine (no proration within a week).
func weekEpoch(t time.Time) time.Time {
	t = t.UTC()
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // ISO: Monday=1 .. Sunday=7
	}
	daysSinceMonday := weekday - 1
	monday := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -daysSinceMonday)
	return monday
}

// applyDecay lazily decays a player's ELO toward the base rating for every
// whole week elapsed since lastDecayAt, called just before the rating is
// read or updated (spec §4.I).
func applyDecay(stats *PlayerYearStats, asOf time.Time) {
	if stats.ELO.LastDecayAt == "" {
		stats.ELO.LastDecayAt = weekEpoch(asOf).Format(time.RFC3339)
		return
	}
	last, err := time.Parse(time.RFC3339, stats.ELO.LastDecayAt)
	if err != nil {
		stats.ELO.LastDecayAt = weekEpoch(asOf).Format(time.RFC3339)
		return
	}
	currentEpoch := weekEpoch(asOf)
	lastEpoch := weekEpoch(last)
	weeks := int(currentEpoch.Sub(lastEpoch).Hours() / (24 * 7))
	for i := 0; i < weeks; i++ {
		stats.ELO.Rating = eloBaseRating + (stats.ELO.Rating-eloBaseRating)*decayPerWeek
	}
	if weeks > 0 {
		stats.ELO.LastDecayAt = currentEpoch.Format(time.RFC3339)
	}
}

func (e *RankingEngine) playerStats(year *YearRankings, name string) *PlayerYearStats {
	if s, ok := year.Players[name]; ok {
		return s
	}
	s := &PlayerYearStats{Name: name, ELO: EloState{Rating: eloBaseRating}}
	year.Players[name] = s
	return s
}

func matchResult(homeScore, awayScore int) float64 {
	switch {
	case homeScore > awayScore:
		return 1
	case awayScore > homeScore:
		return 0
	default:
		return 0.5
	}
}

// replaySession folds one day's games into year, crediting league points,
// appearance points, goals, ELO movement, and knockout progress.
func (e *RankingEngine) replaySession(year *YearRankings, date string, games Games, teams []Team) {
	playedAt, err := time.Parse("2006-01-02", date)
	if err != nil {
		return
	}

	memberOf := map[string]string{} // player -> team name, for this session
	for _, t := range teams {
		for _, slot := range t.Slots {
			if slot != nil {
				memberOf[*slot] = t.Name
			}
		}
	}

	type snapshot struct {
		points int
		elo    float64
	}
	before := make(map[string]snapshot, len(memberOf))
	for name := range memberOf {
		stats := e.playerStats(year, name)
		before[name] = snapshot{points: stats.RawPoints, elo: stats.ELO.Rating}
	}

	teamPoints := map[string]int{}

	for _, round := range games.Rounds {
		for _, m := range round {
			if m.IsBye() {
				continue
			}
			if m.HomeScore == nil || m.AwayScore == nil {
				continue
			}
			result := matchResult(*m.HomeScore, *m.AwayScore)
			switch result {
			case 1:
				teamPoints[m.Home] += leagueWinPoints
				teamPoints[m.Away] += leagueLossPoints
			case 0:
				teamPoints[m.Away] += leagueWinPoints
				teamPoints[m.Home] += leagueLossPoints
			default:
				teamPoints[m.Home] += leagueDrawPoints
				teamPoints[m.Away] += leagueDrawPoints
			}
			e.applyScorers(year, m.HomeScorers, playedAt)
			e.applyScorers(year, m.AwayScorers, playedAt)
			e.applyTeamMatchELO(year, m.Home, m.Away, result, eloLeagueK, memberOf, playedAt)
		}
	}

	rankedTeams := make([]string, 0, len(teamPoints))
	for name := range teamPoints {
		rankedTeams = append(rankedTeams, name)
	}
	sort.SliceStable(rankedTeams, func(i, j int) bool {
		return teamPoints[rankedTeams[i]] > teamPoints[rankedTeams[j]]
	})

	for name := range memberOf {
		stats := e.playerStats(year, name)
		applyDecay(stats, playedAt)
		stats.Appearances++
		stats.LastPlayedAt = date
		stats.ELO.LastDecayAt = weekEpoch(playedAt).Format(time.RFC3339)
	}

	for rank, teamName := range rankedTeams {
		bonus := leagueBonusByRank[rank+1]
		for playerName, p := range memberOf {
			if p != teamName {
				continue
			}
			stats := e.playerStats(year, playerName)
			stats.RawPoints += teamPoints[teamName] + appearancePoints + bonus
			if rank == 0 {
				stats.LeagueWins++
			}
		}
	}

	e.replayKnockout(year, games.Knockout, memberOf, playedAt)

	for name, was := range before {
		stats := e.playerStats(year, name)
		delta := RankingBreakdown{
			PointsDelta: stats.RawPoints - was.points,
			EloDelta:    stats.ELO.Rating - was.elo,
		}
		if delta.PointsDelta == 0 && delta.EloDelta == 0 {
			continue
		}
		if stats.RankingDetail == nil {
			stats.RankingDetail = map[string]RankingBreakdown{}
		}
		stats.RankingDetail[date] = delta
	}
}

// applyTeamMatchELO treats each side's squad average rating as a single
// virtual player for the purpose of the ELO update, then credits the
// resulting delta equally to every member of that side (spec §4.I; k is
// eloLeagueK for league fixtures or eloKnockoutK for knockout fixtures).
func (e *RankingEngine) applyTeamMatchELO(year *YearRankings, homeTeam, awayTeam string, result, k float64, memberOf map[string]string, playedAt time.Time) {
	var homeMembers, awayMembers []*PlayerYearStats
	for name, team := range memberOf {
		switch team {
		case homeTeam:
			s := e.playerStats(year, name)
			applyDecay(s, playedAt)
			homeMembers = append(homeMembers, s)
		case awayTeam:
			s := e.playerStats(year, name)
			applyDecay(s, playedAt)
			awayMembers = append(awayMembers, s)
		}
	}
	if len(homeMembers) == 0 || len(awayMembers) == 0 {
		return
	}

	homeAvg := average(homeMembers)
	awayAvg := average(awayMembers)
	expHome := eloExpected(homeAvg, awayAvg)
	expAway := 1 - expHome
	homeDelta := k * (result - expHome)
	awayDelta := k * ((1 - result) - expAway)
	for _, s := range homeMembers {
		s.ELO.Rating += homeDelta
		s.ELO.GamesPlayed++
	}
	for _, s := range awayMembers {
		s.ELO.Rating += awayDelta
		s.ELO.GamesPlayed++
	}
}

func average(stats []*PlayerYearStats) float64 {
	if len(stats) == 0 {
		return eloBaseRating
	}
	total := 0.0
	for _, s := range stats {
		total += s.ELO.Rating
	}
	return total / float64(len(stats))
}

func (e *RankingEngine) applyScorers(year *YearRankings, scorers map[string]int, playedAt time.Time) {
	for key, goals := range scorers {
		sc := ScorerFromWire(key)
		if sc.OwnGoal {
			continue
		}
		stats := e.playerStats(year, sc.Name)
		applyDecay(stats, playedAt)
		stats.GoalsScored += goals
	}
}

func (e *RankingEngine) replayKnockout(year *YearRankings, matches []KnockoutMatch, memberOf map[string]string, playedAt time.Time) {
	var final *KnockoutMatch
	for i := range matches {
		m := matches[i]
		pts := knockoutPointsByRound[m.Round]
		if pts == 0 {
			continue
		}
		for _, teamName := range []string{m.Home, m.Away} {
			if teamName == "" {
				continue
			}
			for playerName, p := range memberOf {
				if p == teamName {
					e.playerStats(year, playerName).RawPoints += pts
				}
			}
		}
		if !m.IsBye() && m.HomeScore != nil && m.AwayScore != nil {
			e.applyTeamMatchELO(year, m.Home, m.Away, matchResult(*m.HomeScore, *m.AwayScore), eloKnockoutK, memberOf, playedAt)
		}
		if m.Round == "final" {
			final = &matches[i]
		}
	}
	if final == nil {
		return
	}
	if champ, ok := Champion([]KnockoutMatch{*final}); ok {
		for playerName, p := range memberOf {
			if p == champ {
				stats := e.playerStats(year, playerName)
				stats.CupWins++
				stats.RawPoints += knockoutWinPoints
			}
		}
	}
}

// finalize computes each player's hybrid weighted rating and rank, per spec
// §4.I step 4: rawAverage = totalPoints/appearances; weightedAverage =
// (rawPoints + C*globalAverage) / (appearances + C); rankingPoints =
// weightedAverage rounded to 1 dp; hasFullConfidence = appearances >= C,
// else gamesUntilFullConfidence = C - appearances.
func (e *RankingEngine) finalize(year *YearRankings) {
	year.RankingMetadata.ConfidenceThreshold = confidenceConst
	if len(year.Players) == 0 {
		return
	}
	totalPoints, totalAppearances := 0, 0
	for _, s := range year.Players {
		totalPoints += s.RawPoints
		totalAppearances += s.Appearances
	}
	globalAverage := 0.0
	if totalAppearances > 0 {
		globalAverage = float64(totalPoints) / float64(totalAppearances)
	}
	year.GlobalAverage = globalAverage
	year.RankingMetadata.GlobalAverage = globalAverage

	names := make([]string, 0, len(year.Players))
	for name, s := range year.Players {
		names = append(names, name)
		if s.Appearances > 0 {
			s.RawAverage = float64(s.RawPoints) / float64(s.Appearances)
		}
		s.WeightedRating = (float64(s.RawPoints) + confidenceConst*globalAverage) / (float64(s.Appearances) + confidenceConst)
		s.RankingPoints = math.Round(s.WeightedRating*10) / 10
		if float64(s.Appearances) >= confidenceConst {
			s.HasFullConfidence = true
			s.GamesUntilFullConfidence = 0
		} else {
			s.HasFullConfidence = false
			s.GamesUntilFullConfidence = int(confidenceConst) - s.Appearances
		}
	}
	sort.SliceStable(names, func(i, j int) bool {
		return year.Players[names[i]].RankingPoints > year.Players[names[j]].RankingPoints
	})
	for rank, name := range names {
		prev := year.Players[name].Rank
		year.Players[name].Rank = rank + 1
		if prev != 0 {
			year.Players[name].RankMovement = prev - (rank + 1)
		}
	}
}

// carryOverELO seeds next's players with the prior year's ending ELO state
// (rating, accumulated gamesPlayed and lastDecayAt, so decay continues
// across the boundary), the only values that survive a year boundary
// (spec §4.I step 2).
func carryOverELO(prior, next *YearRankings) {
	if prior == nil {
		return
	}
	for name, s := range prior.Players {
		next.playerStats(name).ELO = s.ELO
	}
}

func (y *YearRankings) playerStats(name string) *PlayerYearStats {
	if s, ok := y.Players[name]; ok {
		return s
	}
	s := &PlayerYearStats{Name: name, ELO: EloState{Rating: eloBaseRating}}
	y.Players[name] = s
	return s
}

// Recompute rebuilds the rankings document for (leagueId, year) by
// replaying every session dated within that calendar year, in
// chronological order, carrying ELO over from the previous year's
// snapshot if one exists. Each read and the final write of the rankings
// key go through the store one call at a time; no lock is held across the
// replay, so concurrent recomputes of the same league-year are not
// serialised and the last write wins.
func (e *RankingEngine) Recompute(leagueId string, year int, sessionDates []string) (*YearRankings, error) {
	sort.Strings(sessionDates)

	var prior *YearRankings
	if raw, err := e.store.Get(leagueId, "", rankingsKey(year-1)); err != nil {
		return nil, err
	} else if raw != nil {
		prior = &YearRankings{}
		if err := json.Unmarshal(raw, prior); err != nil {
			return nil, ParseErrorf(err, "league %q rankings %d corrupt", leagueId, year-1)
		}
	}

	result := &YearRankings{Year: year, Players: map[string]*PlayerYearStats{}}
	carryOverELO(prior, result)

	for _, date := range sessionDates {
		gamesRaw, err := e.store.Get(leagueId, date, "games")
		if err != nil {
			return nil, err
		}
		if gamesRaw == nil {
			continue
		}
		var games Games
		if err := json.Unmarshal(gamesRaw, &games); err != nil {
			return nil, ParseErrorf(err, "session %s/%s games corrupt", leagueId, date)
		}
		teamsRaw, err := e.store.Get(leagueId, date, "teams")
		if err != nil {
			return nil, err
		}
		var teams []Team
		if teamsRaw != nil {
			if err := json.Unmarshal(teamsRaw, &teams); err != nil {
				return nil, ParseErrorf(err, "session %s/%s teams corrupt", leagueId, date)
			}
		}
		e.replaySession(result, date, games, teams)
		result.CalculatedDates = append(result.CalculatedDates, date)
	}

	e.finalize(result)
	if len(sessionDates) > 0 {
		result.ComputedThrough = sessionDates[len(sessionDates)-1]
	}
	result.LastUpdated = time.Now().UTC().Format(time.RFC3339)

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, IOErrorf(err, "marshalling rankings")
	}
	if err := e.store.Set(leagueId, "", rankingsKey(year), raw, SetOptions{Overwrite: true}); err != nil {
		return nil, err
	}
	return result, nil
}

func rankingsKey(year int) string {
	return "rankings_" + itoa(year)
}
