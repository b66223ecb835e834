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
)

// PlayerManager implements spec §4.E: add/remove/move/assign, waiting
// list overflow, and ownership binding, all performed under the session
// file's mutex via the Store's SetMany.
type PlayerManager struct {
	store      *Store
	settings   *SettingsResolver
	leagueSecret func(leagueId string) (string, error)
}

// NewPlayerManager creates a manager backed by store and settings.
// leagueSecret resolves the per-league HMAC secret used for ownership
// binding.
func NewPlayerManager(store *Store, settings *SettingsResolver, leagueSecret func(string) (string, error)) *PlayerManager {
	return &PlayerManager{store: store, settings: settings, leagueSecret: leagueSecret}
}

func (m *PlayerManager) loadPlayers(leagueId, date string) (PlayerLists, error) {
	raw, err := m.store.Get(leagueId, date, "players")
	if err != nil {
		return PlayerLists{}, err
	}
	var lists PlayerLists
	if raw != nil {
		if err := json.Unmarshal(raw, &lists); err != nil {
			return PlayerLists{}, ParseErrorf(err, "session %s/%s players corrupt", leagueId, date)
		}
	}
	return lists, nil
}

func (m *PlayerManager) loadOwnership(leagueId, date string) (map[string]string, error) {
	raw, err := m.store.Get(leagueId, date, "ownership")
	if err != nil {
		return nil, err
	}
	ownership := map[string]string{}
	if raw != nil {
		if err := json.Unmarshal(raw, &ownership); err != nil {
			return nil, ParseErrorf(err, "session %s/%s ownership corrupt", leagueId, date)
		}
	}
	return ownership, nil
}

func containsName(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}

func removeName(list []string, name string) ([]string, bool) {
	for i, n := range list {
		if n == name {
			return append(append([]string{}, list[:i]...), list[i+1:]...), true
		}
	}
	return list, false
}

// List is the set a player can be added to or moved between.
type List string

const (
	ListAvailable   List = "available"
	ListWaitingList List = "waitingList"
)

// AddPlayer sanitizes name, rejects duplicates across both lists, demotes
// to the waiting list on overflow, and records the caller's ownership
// binding (spec §4.E).
func (m *PlayerManager) AddPlayer(leagueId, date, rawName string, list List, clientId string) (PlayerLists, error) {
	name := sanitizeName(rawName)
	if name == "" {
		return PlayerLists{}, Validationf("player name must not be empty")
	}

	settings, err := m.settings.Resolve(leagueId, date)
	if err != nil {
		return PlayerLists{}, err
	}
	secret, err := m.leagueSecret(leagueId)
	if err != nil {
		return PlayerLists{}, err
	}

	lists, err := m.loadPlayers(leagueId, date)
	if err != nil {
		return PlayerLists{}, err
	}
	if containsName(lists.Available, name) || containsName(lists.WaitingList, name) {
		return PlayerLists{}, Conflictf("player %q already in this session", name)
	}

	target := list
	if target == ListAvailable && len(lists.Available) >= settings.PlayerLimit {
		target = ListWaitingList
	}
	switch target {
	case ListAvailable:
		lists.Available = append(lists.Available, name)
	default:
		lists.WaitingList = append(lists.WaitingList, name)
	}

	ownership, err := m.loadOwnership(leagueId, date)
	if err != nil {
		return PlayerLists{}, err
	}
	ownership[name] = HMACOwnership(clientId, secret)

	if err := m.writePlayersAndOwnership(leagueId, date, lists, ownership); err != nil {
		return PlayerLists{}, err
	}
	m.settings.Invalidate(leagueId, date)
	return lists, nil
}

func (m *PlayerManager) writePlayersAndOwnership(leagueId, date string, lists PlayerLists, ownership map[string]string) error {
	playersRaw, err := json.Marshal(lists)
	if err != nil {
		return IOErrorf(err, "marshalling players")
	}
	ownershipRaw, err := json.Marshal(ownership)
	if err != nil {
		return IOErrorf(err, "marshalling ownership")
	}
	return m.store.SetMany(leagueId, date, []Operation{
		{Kind: OpSet, Key: "players", Value: playersRaw, Options: SetOptions{Overwrite: true}},
		{Kind: OpSet, Key: "ownership", Value: ownershipRaw, Options: SetOptions{Overwrite: true}},
	})
}

// checkOwnership enforces spec §4.E's ownership rule: only the binding
// clientId, or a caller presenting a valid admin code, may move/remove a
// player they did not add.
func (m *PlayerManager) checkOwnership(leagueId, date, name, clientId, secret string, isAdmin bool, ownership map[string]string) error {
	if isAdmin {
		return nil
	}
	bound, ok := ownership[name]
	if !ok {
		// No recorded binding (legacy/imported data): permit.
		return nil
	}
	if !VerifyOwnership(bound, clientId, secret) {
		return Forbiddenf("you do not own player %q", name)
	}
	return nil
}

// RemovePlayer removes name from whichever list holds it and releases its
// ownership binding. It takes no removal action: no-show removals are not
// distinguished and no discipline entry is recorded.
func (m *PlayerManager) RemovePlayer(leagueId, date, name, clientId string, isAdmin bool) (PlayerLists, error) {
	secret, err := m.leagueSecret(leagueId)
	if err != nil {
		return PlayerLists{}, err
	}
	lists, err := m.loadPlayers(leagueId, date)
	if err != nil {
		return PlayerLists{}, err
	}
	ownership, err := m.loadOwnership(leagueId, date)
	if err != nil {
		return PlayerLists{}, err
	}
	if err := m.checkOwnership(leagueId, date, name, clientId, secret, isAdmin, ownership); err != nil {
		return PlayerLists{}, err
	}

	var removed bool
	lists.Available, removed = removeName(lists.Available, name)
	if !removed {
		lists.WaitingList, removed = removeName(lists.WaitingList, name)
	}
	if !removed {
		return PlayerLists{}, NotFoundf("player %q not found in this session", name)
	}
	delete(ownership, name)

	if err := m.writePlayersAndOwnership(leagueId, date, lists, ownership); err != nil {
		return PlayerLists{}, err
	}
	m.settings.Invalidate(leagueId, date)
	return lists, nil
}

// MovePlayer performs an explicit cross-list move, respecting the
// overflow rule of spec invariant 2.
func (m *PlayerManager) MovePlayer(leagueId, date, name string, from, to List, clientId string, isAdmin bool) (PlayerLists, error) {
	secret, err := m.leagueSecret(leagueId)
	if err != nil {
		return PlayerLists{}, err
	}
	settings, err := m.settings.Resolve(leagueId, date)
	if err != nil {
		return PlayerLists{}, err
	}
	lists, err := m.loadPlayers(leagueId, date)
	if err != nil {
		return PlayerLists{}, err
	}
	ownership, err := m.loadOwnership(leagueId, date)
	if err != nil {
		return PlayerLists{}, err
	}
	if err := m.checkOwnership(leagueId, date, name, clientId, secret, isAdmin, ownership); err != nil {
		return PlayerLists{}, err
	}

	var removed bool
	switch from {
	case ListAvailable:
		lists.Available, removed = removeName(lists.Available, name)
	case ListWaitingList:
		lists.WaitingList, removed = removeName(lists.WaitingList, name)
	}
	if !removed {
		return PlayerLists{}, NotFoundf("player %q not found in list %q", name, from)
	}

	target := to
	if target == ListAvailable && len(lists.Available) >= settings.PlayerLimit {
		target = ListWaitingList
	}
	switch target {
	case ListAvailable:
		lists.Available = append(lists.Available, name)
	default:
		lists.WaitingList = append(lists.WaitingList, name)
	}

	if err := m.writePlayersAndOwnership(leagueId, date, lists, ownership); err != nil {
		return PlayerLists{}, err
	}
	m.settings.Invalidate(leagueId, date)
	return lists, nil
}

func (m *PlayerManager) loadTeams(leagueId, date string) ([]Team, error) {
	raw, err := m.store.Get(leagueId, date, "teams")
	if err != nil {
		return nil, err
	}
	var teams []Team
	if raw != nil {
		if err := json.Unmarshal(raw, &teams); err != nil {
			return nil, ParseErrorf(err, "session %s/%s teams corrupt", leagueId, date)
		}
	}
	return teams, nil
}

// AssignToTeam places an available player into a named team's first open
// slot, subject to the team's maxPlayersPerTeam cap. Writes teams +
// players atomically via SetMany (spec §4.E).
func (m *PlayerManager) AssignToTeam(leagueId, date, name, teamName string) ([]Team, error) {
	settings, err := m.settings.Resolve(leagueId, date)
	if err != nil {
		return nil, err
	}
	lists, err := m.loadPlayers(leagueId, date)
	if err != nil {
		return nil, err
	}
	if !containsName(lists.Available, name) {
		return nil, Conflictf("player %q is not available for this session", name)
	}

	teams, err := m.loadTeams(leagueId, date)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i := range teams {
		if teams[i].Name == teamName {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, NotFoundf("team %q not found", teamName)
	}

	for _, slot := range teams[idx].Slots {
		if slot != nil && *slot == name {
			return nil, Conflictf("player %q is already on team %q", name, teamName)
		}
	}

	filled := 0
	slotIdx := -1
	for i, slot := range teams[idx].Slots {
		if slot != nil {
			filled++
		} else if slotIdx < 0 {
			slotIdx = i
		}
	}
	if filled >= settings.MaxPlayersPerTeam || slotIdx < 0 {
		return nil, Conflictf("team %q is full", teamName)
	}
	n := name
	teams[idx].Slots[slotIdx] = &n

	teamsRaw, err := json.Marshal(teams)
	if err != nil {
		return nil, IOErrorf(err, "marshalling teams")
	}
	playersRaw, err := json.Marshal(lists)
	if err != nil {
		return nil, IOErrorf(err, "marshalling players")
	}
	if err := m.store.SetMany(leagueId, date, []Operation{
		{Kind: OpSet, Key: "teams", Value: teamsRaw, Options: SetOptions{Overwrite: true}},
		{Kind: OpSet, Key: "players", Value: playersRaw, Options: SetOptions{Overwrite: true}},
	}); err != nil {
		return nil, err
	}
	return teams, nil
}

// RemovalAction controls what happens to a player removed from a team.
type RemovalAction string

const (
	ActionToWaitingList RemovalAction = "waitingList"
	ActionRemove        RemovalAction = "remove"
	ActionNoShow        RemovalAction = "no-show"
)

// RemoveFromTeam clears name's team slot. With action == waitingList the
// player returns to the session's waiting list; otherwise they leave the
// session entirely (spec §4.E).
func (m *PlayerManager) RemoveFromTeam(leagueId, date, name, teamName string, action RemovalAction) ([]Team, PlayerLists, error) {
	teams, err := m.loadTeams(leagueId, date)
	if err != nil {
		return nil, PlayerLists{}, err
	}
	idx := -1
	for i := range teams {
		if teams[i].Name == teamName {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, PlayerLists{}, NotFoundf("team %q not found", teamName)
	}
	found := false
	for i, slot := range teams[idx].Slots {
		if slot != nil && *slot == name {
			teams[idx].Slots[i] = nil
			found = true
			break
		}
	}
	if !found {
		return nil, PlayerLists{}, NotFoundf("player %q not found on team %q", name, teamName)
	}

	lists, err := m.loadPlayers(leagueId, date)
	if err != nil {
		return nil, PlayerLists{}, err
	}
	if action == ActionToWaitingList {
		lists.Available, _ = removeName(lists.Available, name)
		if !containsName(lists.WaitingList, name) {
			lists.WaitingList = append(lists.WaitingList, name)
		}
	} else {
		lists.Available, _ = removeName(lists.Available, name)
		lists.WaitingList, _ = removeName(lists.WaitingList, name)
	}

	teamsRaw, err := json.Marshal(teams)
	if err != nil {
		return nil, PlayerLists{}, IOErrorf(err, "marshalling teams")
	}
	playersRaw, err := json.Marshal(lists)
	if err != nil {
		return nil, PlayerLists{}, IOErrorf(err, "marshalling players")
	}
	if err := m.store.SetMany(leagueId, date, []Operation{
		{Kind: OpSet, Key: "teams", Value: teamsRaw, Options: SetOptions{Overwrite: true}},
		{Kind: OpSet, Key: "players", Value: playersRaw, Options: SetOptions{Overwrite: true}},
	}); err != nil {
		return nil, PlayerLists{}, err
	}
	return teams, lists, nil
}
