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

func TestValidateScoreEntry_ScorerSumMustNotExceedScore(t *testing.T) {
	err := ValidateScoreEntry(ScoreEntryRequest{
		HomeScore:   2,
		AwayScore:   1,
		HomeScorers: map[string]int{"alice": 3},
	})
	require.Error(t, err)
	assert.Equal(t, KindValidation, ErrKind(err))
}

func TestValidateScoreEntry_AllowsExactMatch(t *testing.T) {
	err := ValidateScoreEntry(ScoreEntryRequest{
		HomeScore:   2,
		AwayScore:   1,
		HomeScorers: map[string]int{"alice": 1, "bob": 1},
		AwayScorers: map[string]int{"carol": 1},
	})
	require.NoError(t, err)
}

func TestValidateScoreEntry_RejectsMoreThanTwoOwnGoals(t *testing.T) {
	err := ValidateScoreEntry(ScoreEntryRequest{
		HomeScore:   3,
		AwayScore:   0,
		HomeScorers: map[string]int{ownGoalKey: 3},
	})
	require.Error(t, err)
}

func TestValidateScoreEntry_RejectsOutOfRangeScore(t *testing.T) {
	err := ValidateScoreEntry(ScoreEntryRequest{HomeScore: 150, AwayScore: 0})
	require.Error(t, err)
}

func TestValidateStruct_LeagueCreateRequest(t *testing.T) {
	err := ValidateStruct(LeagueCreateRequest{ID: "my-league", DisplayName: "My League", OwnerEmail: "not-an-email"})
	require.Error(t, err)

	err = ValidateStruct(LeagueCreateRequest{ID: "my-league", DisplayName: "My League", OwnerEmail: "owner@example.com"})
	require.NoError(t, err)
}
