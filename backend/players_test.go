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

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlayerManager(t *testing.T) (*PlayerManager, string) {
	t.Helper()
	store := newTestStore(t)
	settings := NewSettingsResolver(store)
	secret := "league-secret"
	m := NewPlayerManager(store, settings, func(string) (string, error) { return secret, nil })
	return m, uuid.NewString()
}

func TestAddPlayer_OverflowsToWaitingListAtLimit(t *testing.T) {
	m, client := newTestPlayerManager(t)
	store := m.store
	settingsRaw := []byte(`{"playerLimit":1}`)
	require.NoError(t, store.Set("acme", "", "defaultSettings", settingsRaw, SetOptions{Overwrite: true}))

	lists, err := m.AddPlayer("acme", "2026-07-06", "Alice", ListAvailable, client)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, lists.Available)

	lists, err = m.AddPlayer("acme", "2026-07-06", "Bob", ListAvailable, client)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, lists.Available)
	assert.Equal(t, []string{"Bob"}, lists.WaitingList)
}

func TestAddPlayer_RejectsDuplicateName(t *testing.T) {
	m, client := newTestPlayerManager(t)
	_, err := m.AddPlayer("acme", "2026-07-06", "Alice", ListAvailable, client)
	require.NoError(t, err)
	_, err = m.AddPlayer("acme", "2026-07-06", "Alice", ListAvailable, client)
	require.Error(t, err)
	assert.Equal(t, KindConflict, ErrKind(err))
}

func TestRemovePlayer_RequiresOwnership(t *testing.T) {
	m, owner := newTestPlayerManager(t)
	_, err := m.AddPlayer("acme", "2026-07-06", "Alice", ListAvailable, owner)
	require.NoError(t, err)

	other := uuid.NewString()
	_, err = m.RemovePlayer("acme", "2026-07-06", "Alice", other, false)
	require.Error(t, err)
	assert.Equal(t, KindForbidden, ErrKind(err))

	_, err = m.RemovePlayer("acme", "2026-07-06", "Alice", owner, false)
	require.NoError(t, err)
}

func TestRemovePlayer_AdminBypassesOwnership(t *testing.T) {
	m, owner := newTestPlayerManager(t)
	_, err := m.AddPlayer("acme", "2026-07-06", "Alice", ListAvailable, owner)
	require.NoError(t, err)

	other := uuid.NewString()
	lists, err := m.RemovePlayer("acme", "2026-07-06", "Alice", other, true)
	require.NoError(t, err)
	assert.Empty(t, lists.Available)
}

func TestAssignToTeam_RespectsCapacity(t *testing.T) {
	m, client := newTestPlayerManager(t)
	_, err := m.AddPlayer("acme", "2026-07-06", "Alice", ListAvailable, client)
	require.NoError(t, err)

	teams := []Team{{Name: "Red", Slots: []*string{nil}}}
	teamsRaw, err := MarshalTeams(teams)
	require.NoError(t, err)
	require.NoError(t, m.store.Set("acme", "2026-07-06", "teams", teamsRaw, SetOptions{Overwrite: true}))

	_, err = m.AssignToTeam("acme", "2026-07-06", "Alice", "Red")
	require.NoError(t, err)

	_, err = m.AddPlayer("acme", "2026-07-06", "Bob", ListAvailable, client)
	require.NoError(t, err)
	_, err = m.AssignToTeam("acme", "2026-07-06", "Bob", "Red")
	require.Error(t, err)
	assert.Equal(t, KindConflict, ErrKind(err))
}
