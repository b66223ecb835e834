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
	"math/rand/v2"
	"sort"
)

// seededSearchIterations is I in spec §4.G's iterative search: run this many
// randomized candidate layouts and keep the lowest-scoring one whenever a
// teammate history exists to balance against; a single shuffle otherwise.
const seededSearchIterations = 25

// defaultColours is the engine's built-in team-naming palette (spec §3),
// sized comfortably beyond any realistic maxTeams.
var defaultColours = []string{
	"Red", "Blue", "Green", "Yellow", "Orange", "Purple",
	"Black", "White", "Grey", "Gold", "Silver", "Teal",
}

// teamNouns pairs with defaultColours to build two-word team names when a
// league's configured colour set runs out before maxTeams does.
var teamNouns = []string{
	"Hawks", "Wolves", "Foxes", "Lions", "Tigers", "Sharks",
	"Eagles", "Panthers", "Bears", "Falcons", "Cobras", "Stallions",
}

// PlayerRating is the ELO-style strength estimate a team generator draws
// from (spec §4.G, fed by the ranking engine of §4.I).
type PlayerRating struct {
	Name   string
	Rating float64
}

// teammateHistoryPenalty implements spec §4.G's pairing penalty:
// f(0) = -2 (bonus for never having played together),
// f(1) = -1, f(k) = k^2 for k >= 2 (quadratic cost for repeat pairings).
func teammateHistoryPenalty(count int) float64 {
	switch {
	case count == 0:
		return -2
	case count == 1:
		return -1
	default:
		return float64(count * count)
	}
}

// teammateHardReject is the count at or above which a candidate placement
// is rejected outright rather than merely penalized (spec §4.G, decided in
// SPEC_FULL.md's Open Question resolution).
const teammateHardReject = 3

// teamColourName returns the name assigned to the i'th generated team,
// falling back to a colour+noun combination once the configured palette is
// exhausted.
func teamColourName(colours []string, i int) string {
	if i < len(colours) {
		return colours[i]
	}
	c := colours[i%len(colours)]
	n := teamNouns[(i/len(colours))%len(teamNouns)]
	return c + " " + n
}

// buildPots sorts ratings descending and partitions them into pots of size
// teamCount — one ELO-banded slot per team, tail pot short rather than
// null-padded (spec §4.G: "partition into pots of size teams"; there are
// max(teamSizes) of them when team sizes are roughly equal).
func buildPots(ratings []PlayerRating, teamCount int) [][]PlayerRating {
	sorted := append([]PlayerRating(nil), ratings...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rating > sorted[j].Rating })

	var pots [][]PlayerRating
	for i := 0; i < len(sorted); i += teamCount {
		end := i + teamCount
		if end > len(sorted) {
			end = len(sorted)
		}
		pots = append(pots, sorted[i:end])
	}
	return pots
}

// teammateHistory counts, for every unordered pair of players, how many
// past sessions placed them on the same team (spec §3's teammateHistory
// sub-key).
type teammateHistory map[[2]string]int

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

func (h teammateHistory) count(a, b string) int {
	return h[pairKey(a, b)]
}

func (h teammateHistory) record(names []string) {
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			h[pairKey(names[i], names[j])]++
		}
	}
}

// seededCandidate is one full layout produced by a single search iteration:
// every player placed, ready to be scored as a whole against its rivals.
type seededCandidate struct {
	teams       []Team
	teamRatings []float64
	teamMembers [][]string
	placements  []DrawPlacement
}

// scoreCandidate computes the cost of a complete candidate layout per spec
// §4.G: eloDelta + W * pairingPenalty, where eloDelta is the spread between
// the strongest and weakest team average and pairingPenalty sums
// teammateHistoryPenalty over every intra-team pair. A pair at or above
// teammateHardReject rejects the whole candidate outright.
func scoreCandidate(c seededCandidate, history teammateHistory, weight float64) (float64, bool) {
	minAvg, maxAvg := math.Inf(1), math.Inf(-1)
	for t, members := range c.teamMembers {
		if len(members) == 0 {
			continue
		}
		avg := c.teamRatings[t] / float64(len(members))
		if avg < minAvg {
			minAvg = avg
		}
		if avg > maxAvg {
			maxAvg = avg
		}
	}
	eloDelta := 0.0
	if maxAvg >= minAvg {
		eloDelta = maxAvg - minAvg
	}

	penalty := 0.0
	for _, members := range c.teamMembers {
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				count := history.count(members[i], members[j])
				if count >= teammateHardReject {
					return 0, false
				}
				penalty += teammateHistoryPenalty(count)
			}
		}
	}
	return eloDelta + weight*penalty, true
}

// nextSlot returns the index of team's first empty slot, or -1 if it is
// already full.
func nextSlot(team Team) int {
	for i, s := range team.Slots {
		if s == nil {
			return i
		}
	}
	return -1
}

// buildCandidate draws one full layout: for each pot in order, shuffle it
// (Fisher-Yates) and hand its i-th member to the i-th team that still has
// room, skipping teams already filled for this round (spec §4.G step 3).
func buildCandidate(pots [][]PlayerRating, teamSizes []int, colours []string) seededCandidate {
	teamCount := len(teamSizes)
	teams := newEmptyTeams(teamSizes, colours)
	teamRatings := make([]float64, teamCount)
	teamMembers := make([][]string, teamCount)
	var placements []DrawPlacement

	for potIdx, pot := range pots {
		shuffled := append([]PlayerRating(nil), pot...)
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		var open []int
		for t := 0; t < teamCount; t++ {
			if nextSlot(teams[t]) >= 0 {
				open = append(open, t)
			}
		}

		for i, candidate := range shuffled {
			if i >= len(open) {
				break
			}
			t := open[i]
			slot := nextSlot(teams[t])
			name := candidate.Name
			teams[t].Slots[slot] = &name
			teamRatings[t] += candidate.Rating
			teamMembers[t] = append(teamMembers[t], name)
			placements = append(placements, DrawPlacement{Player: name, ToTeam: teams[t].Name, FromPot: potIdx})
		}
	}
	return seededCandidate{teams: teams, teamRatings: teamRatings, teamMembers: teamMembers, placements: placements}
}

// TeamGenerator builds balanced or random team configurations for a
// session (spec §4.G).
type TeamGenerator struct {
	// PenaltyWeight is W in the balancing formula. Exposed for tests.
	PenaltyWeight float64
}

// NewTeamGenerator returns a generator with the engine's default penalty
// weight (spec §4.G: W = 5).
func NewTeamGenerator() *TeamGenerator {
	return &TeamGenerator{PenaltyWeight: 5}
}

// Generate builds teamCount teams of teamSizes[i] slots from ratings using
// the requested method, producing both the final team roster and a replay
// trace of every placement decision.
func (g *TeamGenerator) Generate(ratings []PlayerRating, teamSizes []int, colours []string, method string, history teammateHistory) ([]Team, DrawTrace, error) {
	if len(ratings) == 0 {
		return nil, DrawTrace{}, Validationf("cannot generate teams with no players")
	}
	teamCount := len(teamSizes)
	if teamCount == 0 {
		return nil, DrawTrace{}, Validationf("teamSizes must not be empty")
	}

	if method == "random" {
		return g.generateRandom(ratings, teamSizes, colours)
	}
	return g.generateSeeded(ratings, teamSizes, colours, history)
}

func (g *TeamGenerator) generateRandom(ratings []PlayerRating, teamSizes []int, colours []string) ([]Team, DrawTrace, error) {
	shuffled := append([]PlayerRating(nil), ratings...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	teams := newEmptyTeams(teamSizes, colours)
	trace := DrawTrace{Method: "random", InitialPots: [][]string{namesOf(shuffled)}}

	idx := 0
	for t := range teams {
		for s := range teams[t].Slots {
			if idx >= len(shuffled) {
				break
			}
			name := shuffled[idx].Name
			teams[t].Slots[s] = &name
			trace.Placements = append(trace.Placements, DrawPlacement{Player: name, ToTeam: teams[t].Name, FromPot: 0})
			idx++
		}
	}
	return teams, trace, nil
}

func (g *TeamGenerator) generateSeeded(ratings []PlayerRating, teamSizes []int, colours []string, history teammateHistory) ([]Team, DrawTrace, error) {
	if history == nil {
		history = teammateHistory{}
	}
	teamCount := len(teamSizes)
	pots := buildPots(ratings, teamCount)

	trace := DrawTrace{Method: "seeded"}
	for _, pot := range pots {
		trace.InitialPots = append(trace.InitialPots, namesOf(pot))
	}

	iterations := 1
	if len(history) > 0 {
		iterations = seededSearchIterations
	}

	var best, fallback seededCandidate
	var bestScore float64
	found, haveFallback := false, false

	for iter := 0; iter < iterations; iter++ {
		candidate := buildCandidate(pots, teamSizes, colours)
		if !haveFallback {
			fallback, haveFallback = candidate, true
		}
		score, ok := scoreCandidate(candidate, history, g.PenaltyWeight)
		if !ok {
			continue
		}
		if !found || score < bestScore {
			best, bestScore, found = candidate, score, true
		}
	}
	if !found {
		// every iteration hard-rejected: every pot split already keeps pot
		// members on distinct teams, so fall back to the first layout
		// rather than failing the draw outright.
		best = fallback
	}

	for _, members := range best.teamMembers {
		history.record(members)
	}
	trace.Placements = best.placements
	return best.teams, trace, nil
}

func newEmptyTeams(teamSizes []int, colours []string) []Team {
	if len(colours) == 0 {
		colours = defaultColours
	}
	teams := make([]Team, len(teamSizes))
	for i, size := range teamSizes {
		teams[i] = Team{Name: teamColourName(colours, i), Slots: make([]*string, size)}
	}
	return teams
}

func namesOf(ratings []PlayerRating) []string {
	out := make([]string, len(ratings))
	for i, r := range ratings {
		out[i] = r.Name
	}
	return out
}

// MarshalTeams is a convenience for handlers writing the teams sub-key.
func MarshalTeams(teams []Team) (json.RawMessage, error) {
	raw, err := json.Marshal(teams)
	if err != nil {
		return nil, IOErrorf(err, "marshalling teams")
	}
	return raw, nil
}
