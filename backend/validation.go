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
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is a single, long-lived validator instance (the library
// recommends caching it; its struct-tag cache would otherwise be rebuilt
// per-request).
var validate = validator.New()

// AddPlayerRequest is the wire DTO for POST /api/players (spec §6).
type AddPlayerRequest struct {
	Name string `json:"name" validate:"required,max=64"`
	List string `json:"list" validate:"omitempty,oneof=available waitingList"`
}

// MovePlayerRequest is the wire DTO for a player-list move.
type MovePlayerRequest struct {
	Name string `json:"name" validate:"required,max=64"`
	From string `json:"from" validate:"required,oneof=available waitingList"`
	To   string `json:"to" validate:"required,oneof=available waitingList"`
}

// AssignToTeamRequest is the wire DTO for placing a player on a team.
type AssignToTeamRequest struct {
	Name     string `json:"name" validate:"required,max=64"`
	TeamName string `json:"teamName" validate:"required,max=64"`
}

// ScoreEntryRequest is the wire DTO for recording a match score (spec §3:
// scores 0-99, scorer goal counts must not exceed the recorded score).
type ScoreEntryRequest struct {
	HomeScore   int            `json:"homeScore" validate:"gte=0,lte=99"`
	AwayScore   int            `json:"awayScore" validate:"gte=0,lte=99"`
	HomeScorers map[string]int `json:"homeScorers" validate:"omitempty,dive,gte=0,lte=99"`
	AwayScorers map[string]int `json:"awayScorers" validate:"omitempty,dive,gte=0,lte=99"`
}

// ValidateScoreEntry runs struct validation plus the cross-field
// invariants validator tags can't express directly: the sum of a side's
// scorer goals must not exceed its recorded score, and at most two own
// goals may be credited per match (spec §3).
func ValidateScoreEntry(req ScoreEntryRequest) error {
	if err := validate.Struct(req); err != nil {
		return Validationf("invalid score entry: %s", err.Error())
	}
	if sum := sumScorers(req.HomeScorers); sum > req.HomeScore {
		return Validationf("home scorer goals (%d) exceed recorded score (%d)", sum, req.HomeScore)
	}
	if sum := sumScorers(req.AwayScorers); sum > req.AwayScore {
		return Validationf("away scorer goals (%d) exceed recorded score (%d)", sum, req.AwayScore)
	}
	if n := req.HomeScorers[ownGoalKey] + req.AwayScorers[ownGoalKey]; n > 2 {
		return Validationf("at most 2 own goals may be recorded per match, got %d", n)
	}
	return nil
}

func sumScorers(scorers map[string]int) int {
	total := 0
	for _, n := range scorers {
		total += n
	}
	return total
}

// GenerateGamesRequest is the wire DTO for POST /api/games (spec §6):
// anchorIndex picks the fixed team for the round-robin rotation (random when
// omitted), rounds selects a single (1) or double (2) round-robin, and
// addMore/existingRounds request an extension of an already-generated
// schedule instead of a fresh one (spec §4.F's addMoreRounds).
type GenerateGamesRequest struct {
	AnchorIndex    *int              `json:"anchorIndex" validate:"omitempty,gte=0"`
	Rounds         int               `json:"rounds" validate:"omitempty,oneof=1 2"`
	ExistingRounds [][]ScheduleMatch `json:"existingRounds"`
	AddMore        int               `json:"addMore" validate:"omitempty,gte=0"`
}

// LeagueCreateRequest is the wire DTO for POST /api/leagues.
type LeagueCreateRequest struct {
	ID          string `json:"id" validate:"required,min=3,max=63"`
	DisplayName string `json:"displayName" validate:"required,max=128"`
	OwnerEmail  string `json:"ownerEmail" validate:"required,email"`
}

// LeagueAuthenticateRequest is the wire DTO for POST /api/leagues/authenticate.
type LeagueAuthenticateRequest struct {
	AccessCode string `json:"accessCode" validate:"required"`
}

// ResetAccessCodeRequest is the wire DTO for the access-code reset flow.
type ResetAccessCodeRequest struct {
	Token string `json:"token" validate:"required"`
}

// ValidateStruct runs the shared validator instance over req, translating
// its error into the engine's Validationf error kind.
func ValidateStruct(req any) error {
	if err := validate.Struct(req); err != nil {
		return Validationf("%s", humanizeValidationError(err))
	}
	return nil
}

func humanizeValidationError(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}
