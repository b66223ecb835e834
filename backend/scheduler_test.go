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

func TestGenerateSchedule_EvenTeams(t *testing.T) {
	s := NewScheduler()
	rounds, err := s.GenerateSchedule([]string{"Red", "Blue", "Green", "Yellow"}, false, 0)
	require.NoError(t, err)
	assert.Len(t, rounds, 3)
	require.NoError(t, ValidateSchedule(rounds))

	seen := map[[2]string]bool{}
	for _, round := range rounds {
		for _, m := range round {
			require.False(t, m.IsBye())
			key := pairKey(m.Home, m.Away)
			assert.False(t, seen[key], "pairing %v scheduled twice", key)
			seen[key] = true
		}
	}
	assert.Len(t, seen, 6) // C(4,2)
}

func TestGenerateSchedule_OddTeamsGetByes(t *testing.T) {
	s := NewScheduler()
	rounds, err := s.GenerateSchedule([]string{"Red", "Blue", "Green"}, false, 0)
	require.NoError(t, err)
	require.NoError(t, ValidateSchedule(rounds))

	byeCount := 0
	for _, round := range rounds {
		for _, m := range round {
			if m.IsBye() {
				byeCount++
			}
		}
	}
	assert.Equal(t, 3, byeCount) // each team sits out exactly once
}

func TestGenerateSchedule_FourTeamsAnchorZeroMatchesExactOrientation(t *testing.T) {
	s := NewScheduler()
	rounds, err := s.GenerateSchedule([]string{"A", "B", "C", "D"}, true, 0)
	require.NoError(t, err)
	require.Len(t, rounds, 6)

	want := [][]ScheduleMatch{
		{{Home: "A", Away: "D"}, {Home: "B", Away: "C"}},
		{{Home: "A", Away: "C"}, {Home: "D", Away: "B"}},
		{{Home: "A", Away: "B"}, {Home: "C", Away: "D"}},
	}
	for i, round := range want {
		assert.Equal(t, round, rounds[i], "leg 1 round %d", i+1)
	}
	for i, round := range want {
		mirrored := rounds[len(want)+i]
		for j, m := range round {
			assert.Equal(t, m.Home, mirrored[j].Away, "leg 2 round %d match %d should swap orientation", i+1, j)
			assert.Equal(t, m.Away, mirrored[j].Home, "leg 2 round %d match %d should swap orientation", i+1, j)
		}
	}
}

func TestGenerateSchedule_DoubleRoundRobinMirrorsHomeAway(t *testing.T) {
	s := NewScheduler()
	rounds, err := s.GenerateSchedule([]string{"Red", "Blue", "Green", "Yellow"}, true, 0)
	require.NoError(t, err)
	assert.Len(t, rounds, 6)

	counts := map[[2]string]int{}
	for _, round := range rounds {
		for _, m := range round {
			if m.IsBye() {
				continue
			}
			counts[[2]string{m.Home, m.Away}]++
		}
	}
	for pair, n := range counts {
		assert.Equal(t, 1, n, "pairing %v should appear exactly once per leg direction", pair)
	}
}

func TestAddMoreRounds_AppendsWithoutDisturbingExisting(t *testing.T) {
	s := NewScheduler()
	teams := []string{"Red", "Blue", "Green", "Yellow"}
	existing, err := s.GenerateSchedule(teams, false, 0)
	require.NoError(t, err)

	extended, err := s.AddMoreRounds(teams, existing, 2, 0)
	require.NoError(t, err)
	assert.Len(t, extended, len(existing)+2)
	assert.Equal(t, existing, extended[:len(existing)])
}

func TestAddMoreRounds_ZeroAdditionalRoundsIsNoop(t *testing.T) {
	s := NewScheduler()
	teams := []string{"Red", "Blue"}
	existing, err := s.GenerateSchedule(teams, false, 0)
	require.NoError(t, err)

	same, err := s.AddMoreRounds(teams, existing, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, existing, same)
}

func TestGenerateSchedule_RejectsSingleTeam(t *testing.T) {
	s := NewScheduler()
	_, err := s.GenerateSchedule([]string{"Red"}, false, 0)
	require.Error(t, err)
	assert.Equal(t, KindValidation, ErrKind(err))
}

func TestValidateSchedule_DetectsSelfPlay(t *testing.T) {
	rounds := [][]ScheduleMatch{{{Home: "Red", Away: "Red"}}}
	err := ValidateSchedule(rounds)
	require.Error(t, err)
}
