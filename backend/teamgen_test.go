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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ratingsFor(names ...string) []PlayerRating {
	ratings := make([]PlayerRating, len(names))
	for i, n := range names {
		ratings[i] = PlayerRating{Name: n, Rating: float64(1200 - i*50)}
	}
	return ratings
}

func TestTeammateHistoryPenalty(t *testing.T) {
	assert.Equal(t, -2.0, teammateHistoryPenalty(0))
	assert.Equal(t, -1.0, teammateHistoryPenalty(1))
	assert.Equal(t, 4.0, teammateHistoryPenalty(2))
	assert.Equal(t, 9.0, teammateHistoryPenalty(3))
}

func TestTeamGenerator_SeededPlacesEveryPlayerExactlyOnce(t *testing.T) {
	g := NewTeamGenerator()
	ratings := ratingsFor("a", "b", "c", "d", "e", "f", "g", "h")
	teams, trace, err := g.Generate(ratings, []int{4, 4}, defaultColours, "seeded", teammateHistory{})
	require.NoError(t, err)
	assert.Len(t, teams, 2)

	placed := map[string]bool{}
	for _, team := range teams {
		for _, slot := range team.Slots {
			require.NotNil(t, slot)
			assert.False(t, placed[*slot], "player %q placed twice", *slot)
			placed[*slot] = true
		}
	}
	assert.Len(t, placed, 8)
	assert.Len(t, trace.Placements, 8)
}

func TestTeamGenerator_HardRejectsOverusedPairing(t *testing.T) {
	g := NewTeamGenerator()
	ratings := ratingsFor("a", "b", "c", "d")
	history := teammateHistory{pairKey("a", "b"): teammateHardReject}

	teams, _, err := g.Generate(ratings, []int{2, 2}, defaultColours, "seeded", history)
	require.NoError(t, err)

	var teamOf = map[string]string{}
	for _, team := range teams {
		for _, slot := range team.Slots {
			if slot != nil {
				teamOf[*slot] = team.Name
			}
		}
	}
	assert.NotEqual(t, teamOf["a"], teamOf["b"], "overused pairing should have been hard-rejected onto separate teams")
}

func TestTeamGenerator_RandomPlacesEveryPlayerExactlyOnce(t *testing.T) {
	g := NewTeamGenerator()
	ratings := ratingsFor("a", "b", "c", "d")
	teams, _, err := g.Generate(ratings, []int{2, 2}, defaultColours, "random", nil)
	require.NoError(t, err)

	placed := map[string]bool{}
	for _, team := range teams {
		for _, slot := range team.Slots {
			require.NotNil(t, slot)
			placed[*slot] = true
		}
	}
	assert.Len(t, placed, 4)
}

func TestTeamGenerator_SeededDrawsOnePlayerPerPotPerTeam(t *testing.T) {
	g := NewTeamGenerator()
	names := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9", "p10", "p11", "p12"}
	ratings := make([]PlayerRating, len(names))
	for i, n := range names {
		ratings[i] = PlayerRating{Name: n, Rating: 1200 - float64(i)*(300.0/11)}
	}
	teams, trace, err := g.Generate(ratings, []int{4, 4, 4}, defaultColours, "seeded", teammateHistory{})
	require.NoError(t, err)
	require.Len(t, teams, 3)
	require.Len(t, trace.InitialPots, 4)

	potOf := map[string]int{}
	for potIdx, pot := range trace.InitialPots {
		for _, name := range pot {
			potOf[name] = potIdx
		}
	}
	for _, team := range teams {
		seen := map[int]bool{}
		for _, slot := range team.Slots {
			require.NotNil(t, slot)
			pot := potOf[*slot]
			assert.False(t, seen[pot], "team %s has two players from pot %d", team.Name, pot)
			seen[pot] = true
		}
		assert.Len(t, seen, 4, "team %s should have exactly one player per pot", team.Name)
	}
}

func TestScoreCandidate_ComputesEloDeltaAndPairingPenalty(t *testing.T) {
	c := seededCandidate{
		teamRatings: []float64{300, 250},
		teamMembers: [][]string{{"a", "b"}, {"c", "d"}},
	}
	history := teammateHistory{pairKey("a", "b"): 1}
	score, ok := scoreCandidate(c, history, 5)
	require.True(t, ok)
	// eloDelta = 150-125 = 25; penalty = f(1) + f(0) = -1 + -2 = -3; score = 25 + 5*-3 = 10
	assert.Equal(t, 10.0, score)
}

func TestScoreCandidate_HardRejectsOverusedPair(t *testing.T) {
	c := seededCandidate{
		teamRatings: []float64{300},
		teamMembers: [][]string{{"a", "b"}},
	}
	history := teammateHistory{pairKey("a", "b"): teammateHardReject}
	_, ok := scoreCandidate(c, history, 5)
	assert.False(t, ok)
}

func TestTeamColourName_FallsBackToColourNounOnceExhausted(t *testing.T) {
	colours := []string{"Red", "Blue"}
	assert.Equal(t, "Red", teamColourName(colours, 0))
	assert.Equal(t, "Blue", teamColourName(colours, 1))
	assert.Equal(t, "Red Wolves", teamColourName(colours, 2))
}
