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

import "math/rand/v2"

// Scheduler generates round-robin fixture lists from a team name list
// (spec §4.F).
type Scheduler struct{}

// NewScheduler returns a Scheduler. It holds no state; every call is a
// pure function of its arguments.
func NewScheduler() *Scheduler { return &Scheduler{} }

const byeName = ""

// generateFullRoundRobinSchedule builds one complete round-robin (every
// team plays every other team once) using the standard circle method:
// one team is held fixed as the anchor and the rest rotate around it each
// round. A synthetic bye is added for odd team counts (spec §4.F).
func generateFullRoundRobinSchedule(teams []string) [][]ScheduleMatch {
	names := append([]string(nil), teams...)
	if len(names)%2 != 0 {
		names = append(names, byeName)
	}
	n := len(names)
	rounds := make([][]ScheduleMatch, n-1)

	rotation := append([]string(nil), names...)
	for r := 0; r < n-1; r++ {
		var round []ScheduleMatch
		for i := 0; i < n/2; i++ {
			home, away := rotation[i], rotation[n-1-i]
			switch {
			case home == byeName:
				round = append(round, ScheduleMatch{Bye: away})
			case away == byeName:
				round = append(round, ScheduleMatch{Bye: home})
			default:
				round = append(round, ScheduleMatch{Home: home, Away: away})
			}
		}
		rounds[r] = round

		// Rotate: keep rotation[0] fixed, move the last element of the
		// tail to just after it, shifting the rest down.
		fixed := rotation[0]
		tail := append([]string(nil), rotation[1:]...)
		tail = append([]string{tail[len(tail)-1]}, tail[:len(tail)-1]...)
		rotation = append([]string{fixed}, tail...)
	}
	return rounds
}

// mirrorRound returns round with home and away swapped on every match, the
// second leg of a double round-robin.
func mirrorRound(round []ScheduleMatch) []ScheduleMatch {
	out := make([]ScheduleMatch, len(round))
	for i, m := range round {
		if m.IsBye() {
			out[i] = m
			continue
		}
		out[i] = ScheduleMatch{Home: m.Away, Away: m.Home}
	}
	return out
}

// anchorAt rotates teams so the team at idx becomes the fixed anchor at
// position 0, preserving the relative order of the rest.
func anchorAt(teams []string, idx int) []string {
	out := make([]string, 0, len(teams))
	out = append(out, teams[idx])
	out = append(out, teams[:idx]...)
	out = append(out, teams[idx+1:]...)
	return out
}

// GenerateSchedule builds a single or double round-robin across teams
// (spec §4.F). Double round-robin mirrors every round as its second leg so
// each pairing is played once at each team's home slot. anchorIndex picks
// which team is held fixed during rotation; 0 anchors the first team, and a
// value outside [0, len(teams)) (callers pass -1 when unset) is replaced by
// an anchor chosen uniformly at random.
func (s *Scheduler) GenerateSchedule(teams []string, double bool, anchorIndex int) ([][]ScheduleMatch, error) {
	if len(teams) < 2 {
		return nil, Validationf("at least two teams are required to schedule a round-robin")
	}
	if anchorIndex < 0 || anchorIndex >= len(teams) {
		anchorIndex = rand.IntN(len(teams))
	}
	rounds := generateFullRoundRobinSchedule(anchorAt(teams, anchorIndex))
	if !double {
		return rounds, nil
	}
	out := make([][]ScheduleMatch, 0, len(rounds)*2)
	out = append(out, rounds...)
	for _, r := range rounds {
		out = append(out, mirrorRound(r))
	}
	return out, nil
}

// AddMoreRounds extends an existing schedule by appending rounds of the
// home/away swapped pass of the round-robin, so the added rounds are the
// return fixtures of the first pass rather than repeats of it; existing
// rounds are left untouched. Teams must be passed in the same order (and
// with the same anchorIndex) used to build existing so the pairing cadence
// lines up.
func (s *Scheduler) AddMoreRounds(teams []string, existing [][]ScheduleMatch, additionalRounds, anchorIndex int) ([][]ScheduleMatch, error) {
	if additionalRounds <= 0 {
		return existing, nil
	}
	fresh, err := s.GenerateSchedule(teams, false, anchorIndex)
	if err != nil {
		return nil, err
	}
	out := append([][]ScheduleMatch(nil), existing...)
	for i := 0; i < additionalRounds; i++ {
		out = append(out, mirrorRound(fresh[i%len(fresh)]))
	}
	return out, nil
}

// ValidateSchedule checks spec §4.F's structural invariants: every team
// named in a round-robin schedule appears the same number of times, and no
// team plays itself.
func ValidateSchedule(rounds [][]ScheduleMatch) error {
	counts := map[string]int{}
	for _, round := range rounds {
		for _, m := range round {
			if m.IsBye() {
				counts[m.Bye]++
				continue
			}
			if m.Home == m.Away {
				return Validationf("team %q scheduled against itself", m.Home)
			}
			counts[m.Home]++
			counts[m.Away]++
		}
	}
	var want = -1
	for name, c := range counts {
		if want == -1 {
			want = c
		} else if c != want {
			return Conflictf("team %q has %d fixtures, expected %d", name, c, want)
		}
	}
	return nil
}
