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

import "math/bits"

// nextPowerOfTwo returns the smallest power of two >= n.
func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// roundName labels a knockout round by the number of matches remaining in
// it, per spec §4.H's fixed vocabulary.
func roundName(matchesInRound int) string {
	switch matchesInRound {
	case 1:
		return "final"
	case 2:
		return "semi"
	case 4:
		return "quarter"
	default:
		return "round-of-" + itoa(matchesInRound*2)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Bracket builds seeded single-elimination knockout brackets (spec §4.H).
type Bracket struct{}

// NewBracket returns a Bracket.
func NewBracket() *Bracket { return &Bracket{} }

// seedOrder returns the standard tournament seeding order for a bracket of
// size n (a power of two): seed 1 plays seed n, seed 2 plays seed n-1 in
// the opposite half, etc., so that the top two seeds can only meet in the
// final.
func seedOrder(n int) []int {
	if n == 1 {
		return []int{1}
	}
	half := seedOrder(n / 2)
	out := make([]int, 0, n)
	for _, s := range half {
		out = append(out, s, n+1-s)
	}
	return out
}

// Generate seeds teams (already ordered strongest-first) into the first
// round of a single-elimination bracket. Byes are awarded to the top seeds
// when teamCount is not a power of two (spec §4.H).
func (b *Bracket) Generate(teams []string) ([]KnockoutMatch, error) {
	if len(teams) < 2 {
		return nil, Validationf("at least two teams are required for a knockout bracket")
	}
	size := nextPowerOfTwo(len(teams))
	slots := make([]string, size)
	order := seedOrder(size)
	for i, seed := range order {
		if seed <= len(teams) {
			slots[i] = teams[seed-1]
		}
	}

	matchesInRound := size / 2
	name := roundName(matchesInRound)
	var round []KnockoutMatch
	for i := 0; i < size; i += 2 {
		home, away := slots[i], slots[i+1]
		switch {
		case home == "" && away == "":
			continue
		case away == "":
			round = append(round, KnockoutMatch{ScheduleMatch: ScheduleMatch{Bye: home}, Round: name})
		case home == "":
			round = append(round, KnockoutMatch{ScheduleMatch: ScheduleMatch{Bye: away}, Round: name})
		default:
			round = append(round, KnockoutMatch{ScheduleMatch: ScheduleMatch{Home: home, Away: away}, Round: name})
		}
	}
	return round, nil
}

// winner returns the winning side of a completed match, or "" if it is a
// bye (the bye side advances automatically) or not yet decided.
func winner(m ScheduleMatch) string {
	if m.IsBye() {
		return m.Bye
	}
	if m.HomeScore == nil || m.AwayScore == nil {
		return ""
	}
	if *m.HomeScore > *m.AwayScore {
		return m.Home
	}
	if *m.AwayScore > *m.HomeScore {
		return m.Away
	}
	return ""
}

// AdvanceRound takes a completed round and produces the next round's
// fixtures from its winners, deterministically preserving bracket order
// (spec §4.H). Returns an error if any non-bye match in the round is
// undecided.
func (b *Bracket) AdvanceRound(round []KnockoutMatch) ([]KnockoutMatch, error) {
	winners := make([]string, 0, len(round))
	for _, m := range round {
		w := winner(m.ScheduleMatch)
		if w == "" {
			return nil, Conflictf("round %q has an undecided match", round[0].Round)
		}
		winners = append(winners, w)
	}
	if len(winners) == 1 {
		return nil, nil // the final has been decided; no further round
	}

	matchesInRound := len(winners) / 2
	name := roundName(matchesInRound)
	var next []KnockoutMatch
	for i := 0; i < len(winners); i += 2 {
		next = append(next, KnockoutMatch{
			ScheduleMatch: ScheduleMatch{Home: winners[i], Away: winners[i+1]},
			Round:         name,
		})
	}
	return next, nil
}

// Champion returns the winner of the final, or ("", false) if the final
// hasn't been decided.
func Champion(final []KnockoutMatch) (string, bool) {
	if len(final) != 1 {
		return "", false
	}
	w := winner(final[0].ScheduleMatch)
	return w, w != ""
}
