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
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// dateFormat matches the ISO date keys session documents are addressed by.
var dateFormat = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidDate reports whether date is a well-formed YYYY-MM-DD key.
func ValidDate(date string) bool {
	return dateFormat.MatchString(date)
}

// PlayerLists is the players sub-document of a session (spec §3).
type PlayerLists struct {
	Available   []string `json:"available"`
	WaitingList []string `json:"waitingList"`
}

// Team is one generated or configured team. Slots hold a player name, or
// nil for an empty slot (spec §3: "entry is either a player name or
// null").
type Team struct {
	Name  string    `json:"name"`
	Slots []*string `json:"slots"`
}

// DrawPlacement is one entry of a draw trace (spec §3, §4.G).
type DrawPlacement struct {
	Player   string `json:"player"`
	ToTeam   string `json:"toTeam"`
	FromPot  int    `json:"fromPot"`
}

// DrawTrace is the full, replayable record of one team-generation run.
type DrawTrace struct {
	Placements  []DrawPlacement `json:"placements"`
	InitialPots [][]string      `json:"initialPots"`
	Method      string          `json:"method"`
}

// ScheduleMatch is one fixture of a round: either a played/unplayed match
// or a bye (spec §3).
type ScheduleMatch struct {
	Home        string         `json:"home,omitempty"`
	Away        string         `json:"away,omitempty"`
	HomeScore   *int           `json:"homeScore,omitempty"`
	AwayScore   *int           `json:"awayScore,omitempty"`
	HomeScorers map[string]int `json:"homeScorers,omitempty"`
	AwayScorers map[string]int `json:"awayScorers,omitempty"`
	Bye         string         `json:"bye,omitempty"`
}

// IsBye reports whether m is a bye entry rather than a match.
func (m ScheduleMatch) IsBye() bool { return m.Bye != "" }

// KnockoutMatch extends ScheduleMatch with the bracket round label.
type KnockoutMatch struct {
	ScheduleMatch
	Round string `json:"round"`
}

// Games is the games sub-document: league rounds plus the knockout stage.
type Games struct {
	Rounds   [][]ScheduleMatch `json:"rounds"`
	Knockout []KnockoutMatch   `json:"knockout,omitempty"`
}

// Settings is the configuration overlay resolved from league defaults and
// a session's own settings key (spec §4.D).
type Settings struct {
	PlayerLimit       int      `json:"playerLimit"`
	MaxTeams          int      `json:"maxTeams"`
	MaxPlayersPerTeam int      `json:"maxPlayersPerTeam"`
	TeamSizes         []int    `json:"teamSizes"`
	Method            string   `json:"method"` // "seeded" | "random"
	Colours           []string `json:"colours,omitempty"`
}

// DefaultSettings returns the engine's built-in fallback when a league
// has never stored its own defaults.
func DefaultSettings() Settings {
	return Settings{
		PlayerLimit:       20,
		MaxTeams:          4,
		MaxPlayersPerTeam: 5,
		TeamSizes:         []int{5, 5, 5, 5},
		Method:            "seeded",
		Colours:           defaultColours,
	}
}

// merge overlays non-zero fields of override onto s.
func (s Settings) merge(override Settings) Settings {
	out := s
	if override.PlayerLimit != 0 {
		out.PlayerLimit = override.PlayerLimit
	}
	if override.MaxTeams != 0 {
		out.MaxTeams = override.MaxTeams
	}
	if override.MaxPlayersPerTeam != 0 {
		out.MaxPlayersPerTeam = override.MaxPlayersPerTeam
	}
	if len(override.TeamSizes) > 0 {
		out.TeamSizes = override.TeamSizes
	}
	if override.Method != "" {
		out.Method = override.Method
	}
	if len(override.Colours) > 0 {
		out.Colours = override.Colours
	}
	return out
}

// SettingsResolver caches the resolved (league-default overlaid by
// per-session) settings in a process-wide LRU shared by all requests
// (spec §4.D). Store writes do not invalidate it by themselves: an entry
// stays cached until Invalidate evicts it.
type SettingsResolver struct {
	store *Store
	cache *lru.Cache[string, Settings]
}

// NewSettingsResolver creates a resolver backed by store.
func NewSettingsResolver(store *Store) *SettingsResolver {
	cache, _ := lru.New[string, Settings](2048)
	return &SettingsResolver{store: store, cache: cache}
}

func settingsCacheKey(leagueId, date string) string {
	return leagueId + "\x00" + date
}

// Resolve returns the effective settings for (leagueId, date).
func (r *SettingsResolver) Resolve(leagueId, date string) (Settings, error) {
	key := settingsCacheKey(leagueId, date)
	if v, ok := r.cache.Get(key); ok {
		return v, nil
	}

	resolved := DefaultSettings()

	if raw, err := r.store.Get(leagueId, "", "defaultSettings"); err != nil {
		return Settings{}, err
	} else if raw != nil {
		var override Settings
		if err := json.Unmarshal(raw, &override); err != nil {
			return Settings{}, ParseErrorf(err, "league %q default settings corrupt", leagueId)
		}
		resolved = resolved.merge(override)
	}

	if date != "" {
		if raw, err := r.store.Get(leagueId, date, "settings"); err != nil {
			return Settings{}, err
		} else if raw != nil {
			var override Settings
			if err := json.Unmarshal(raw, &override); err != nil {
				return Settings{}, ParseErrorf(err, "session %s/%s settings corrupt", leagueId, date)
			}
			resolved = resolved.merge(override)
		}
	}

	r.cache.Add(key, resolved)
	return resolved, nil
}

// Invalidate evicts the cached settings for (leagueId, date) and the
// league-wide (leagueId, "") entry; entries cached for the league's other
// dates are kept.
func (r *SettingsResolver) Invalidate(leagueId, date string) {
	r.cache.Remove(settingsCacheKey(leagueId, date))
	r.cache.Remove(settingsCacheKey(leagueId, ""))
}

// sanitizeName normalizes a player name (spec §6): trims whitespace,
// collapses internal runs of whitespace, and strips control characters.
// Sanitization happens once at the system boundary; the result is
// case-sensitive from then on.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	fields := strings.FieldsFunc(name, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(' ')
		}
		for _, r := range f {
			if r < 0x20 || r == 0x7f {
				continue
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ownGoalKey is the reserved scorer key representing goals credited
// against the opponent rather than to any named player (spec §9).
const ownGoalKey = "__ownGoal__"

// Scorer is the internal sum type the wire's reserved own-goal key is
// normalized into (spec §9): either a named player, or an own goal.
type Scorer struct {
	Name    string
	OwnGoal bool
}

// ScorerFromWire decodes a scorer map key into the internal sum type.
func ScorerFromWire(key string) Scorer {
	if key == ownGoalKey {
		return Scorer{OwnGoal: true}
	}
	return Scorer{Name: key}
}

// Wire encodes the internal sum type back to its wire key.
func (s Scorer) Wire() string {
	if s.OwnGoal {
		return ownGoalKey
	}
	return s.Name
}
