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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetThenGet(t *testing.T) {
	store := newTestStore(t)
	raw, _ := json.Marshal("hello")
	require.NoError(t, store.Set("acme", "2026-07-06", "note", raw, SetOptions{Overwrite: true}))

	got, err := store.Get("acme", "2026-07-06", "note")
	require.NoError(t, err)
	var s string
	require.NoError(t, json.Unmarshal(got, &s))
	assert.Equal(t, "hello", s)
}

func TestStore_GetMissingKeyReturnsNil(t *testing.T) {
	store := newTestStore(t)
	got, err := store.Get("acme", "2026-07-06", "nothing-here")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_SetWithoutOverwritePreservesExisting(t *testing.T) {
	store := newTestStore(t)
	first, _ := json.Marshal("first")
	second, _ := json.Marshal("second")
	require.NoError(t, store.Set("acme", "", "accessCode", first, SetOptions{Overwrite: true}))
	require.NoError(t, store.Set("acme", "", "accessCode", second, SetOptions{Overwrite: false}))

	got, err := store.Get("acme", "", "accessCode")
	require.NoError(t, err)
	var s string
	require.NoError(t, json.Unmarshal(got, &s))
	assert.Equal(t, "first", s)
}

func TestStore_SetManyAppliesAllOpsAtomically(t *testing.T) {
	store := newTestStore(t)
	nameRaw, _ := json.Marshal("Alice")
	codeRaw, _ := json.Marshal("XXXX-XXXX-XXXX")
	err := store.SetMany("acme", "", []Operation{
		{Kind: OpSet, Key: "displayName", Value: nameRaw, Options: SetOptions{Overwrite: true}},
		{Kind: OpSet, Key: "accessCode", Value: codeRaw, Options: SetOptions{Overwrite: true}},
	})
	require.NoError(t, err)

	got, err := store.Get("acme", "", "displayName")
	require.NoError(t, err)
	assert.JSONEq(t, `"Alice"`, string(got))
	got, err = store.Get("acme", "", "accessCode")
	require.NoError(t, err)
	assert.JSONEq(t, `"XXXX-XXXX-XXXX"`, string(got))
}

func TestStore_RemoveSubKey(t *testing.T) {
	store := newTestStore(t)
	obj, _ := json.Marshal(map[string]string{"alice": "tag-1", "bob": "tag-2"})
	require.NoError(t, store.Set("acme", "2026-07-06", "ownership", obj, SetOptions{Overwrite: true}))

	require.NoError(t, store.Remove("acme", "2026-07-06", "ownership", &RemoveSelector{SubKey: "alice"}))

	got, err := store.Get("acme", "2026-07-06", "ownership")
	require.NoError(t, err)
	var m map[string]string
	require.NoError(t, json.Unmarshal(got, &m))
	_, ok := m["alice"]
	assert.False(t, ok)
	assert.Equal(t, "tag-2", m["bob"])
}

func TestStore_ConcurrentSetsSerializeThroughTheFileMutex(t *testing.T) {
	store := newTestStore(t)
	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			raw, _ := json.Marshal(i)
			_ = store.Set("acme", "2026-07-06", "counter", raw, SetOptions{Overwrite: true})
		}(i)
	}
	wg.Wait()

	got, err := store.Get("acme", "2026-07-06", "counter")
	require.NoError(t, err)
	var final int
	require.NoError(t, json.Unmarshal(got, &final))
	assert.True(t, final >= 0 && final < n)
}

func TestStore_SessionDatesListsSortedExistingDocuments(t *testing.T) {
	store := newTestStore(t)
	raw, _ := json.Marshal("x")
	require.NoError(t, store.Set("acme", "2026-07-13", "players", raw, SetOptions{Overwrite: true}))
	require.NoError(t, store.Set("acme", "2026-07-06", "players", raw, SetOptions{Overwrite: true}))
	require.NoError(t, store.Set("acme", "", "displayName", raw, SetOptions{Overwrite: true}))

	dates, err := store.SessionDates("acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-07-06", "2026-07-13"}, dates)
}

func TestStore_SessionDatesUnknownLeagueReturnsEmpty(t *testing.T) {
	store := newTestStore(t)
	dates, err := store.SessionDates("nosuchleague")
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestMutexRegistry_AcquireManyDedupesAndReleasesIdempotently(t *testing.T) {
	reg := NewMutexRegistry()
	h := reg.AcquireMany("/data/b.json", "/data/a.json", "/data/a.json")
	h.Release()
	h.Release()
	// idempotent release and deduped acquisition should not deadlock or panic.
}
