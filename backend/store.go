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
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/c2FmZQ/storage"

	"github.com/cenkalti/backoff/v4"
)

// document is the on-disk shape of any JSON file this store manages: a
// map of top-level keys to raw values. Using json.RawMessage for the
// values means keys this process doesn't understand are preserved
// byte-for-byte across a read-modify-write cycle (spec §6).
type document map[string]json.RawMessage

// Store is the per-league JSON document store of spec §4.B. One Store
// serves every league sharing the process; documents are addressed by
// (leagueId, date|"", key).
type Store struct {
	dataDir string
	fs      *storage.Storage
	locks   *MutexRegistry
}

// NewStore creates a Store rooted at dataDir, backed by an unencrypted
// c2FmZQ/storage instance (spec §4.B is a plaintext, atomically-replaced
// JSON store; this repo has no encryption-at-rest requirement).
func NewStore(dataDir string) *Store {
	return &Store{
		dataDir: dataDir,
		fs:      storage.New(dataDir, nil),
		locks:   NewMutexRegistry(),
	}
}

// docPath returns the path of the document identified by (leagueId, date)
// relative to the store root. date == "" addresses the league's info.json.
func docPath(leagueId, date string) string {
	if date == "" {
		return filepath.Join(leagueId, "info.json")
	}
	return filepath.Join(leagueId, date+".json")
}

// withRetry retries transient I/O errors (spec §7: "optimistic retry of
// the enclosing request on transient I/O errors"). A ParseError is never
// retried — a corrupt file must never be masked by a retry that happens
// to hit a half-written replacement.
func withRetry(op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	b.MaxElapsedTime = 300 * time.Millisecond

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if ErrKind(err) == KindParse || ErrKind(err) == KindNotFound {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

func (s *Store) readDoc(path string) (document, error) {
	var doc document
	err := withRetry(func() error {
		e := s.fs.ReadDataFile(path, &doc)
		if e == nil {
			return nil
		}
		if errors.Is(e, os.ErrNotExist) {
			return NotFoundf("document %s not found", path)
		}
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(e, &syntaxErr) || errors.As(e, &typeErr) {
			return ParseErrorf(e, "corrupt document %s", path)
		}
		return IOErrorf(e, "reading %s", path)
	})
	if err != nil {
		if ErrKind(err) == KindNotFound {
			return document{}, nil
		}
		return nil, err
	}
	if doc == nil {
		doc = document{}
	}
	return doc, nil
}

func (s *Store) writeDoc(path string, doc document) error {
	return withRetry(func() error {
		if err := s.fs.SaveDataFile(path, doc); err != nil {
			return IOErrorf(err, "writing %s", path)
		}
		return nil
	})
}

// Get reads a single sub-document. Returns (nil, nil) if the file or the
// key within it is absent.
func (s *Store) Get(leagueId, date, key string) (json.RawMessage, error) {
	path := docPath(leagueId, date)
	h := s.locks.Acquire(path)
	defer h.Release()

	doc, err := s.readDoc(path)
	if err != nil {
		return nil, err
	}
	return doc[key], nil
}

// SetOptions configures a single Set call.
type SetOptions struct {
	// Default, if non-nil, seeds the key when it is absent before the
	// overwrite/initialize-only logic below runs.
	Default json.RawMessage
	// Overwrite, when false, only writes the value if the key is
	// currently absent (spec §4.B).
	Overwrite bool
}

// Set mutates a single key of the document at (leagueId, date) under the
// file mutex, then performs an atomic temp-file-then-rename replace.
func (s *Store) Set(leagueId, date, key string, value json.RawMessage, opts SetOptions) error {
	path := docPath(leagueId, date)
	h := s.locks.Acquire(path)
	defer h.Release()

	doc, err := s.readDoc(path)
	if err != nil {
		return err
	}
	applySet(doc, key, value, opts)
	return s.writeDoc(path, doc)
}

func applySet(doc document, key string, value json.RawMessage, opts SetOptions) {
	if _, exists := doc[key]; !exists && opts.Default != nil {
		doc[key] = opts.Default
	}
	if opts.Overwrite {
		doc[key] = value
	} else if _, exists := doc[key]; !exists {
		doc[key] = value
	}
}

// RemoveSelector narrows a Remove call to a sub-key, an indexed element of
// an array-valued key, or a value equal to Value.
type RemoveSelector struct {
	// SubKey removes doc[key][SubKey] instead of doc[key] (key must hold
	// a JSON object).
	SubKey string
	// Index removes the element at this position of a JSON array-valued
	// key. Ignored if SubKey is set.
	Index *int
	// Value, if set, removes every array element whose raw JSON bytes
	// equal Value, instead of one selected by Index.
	Value json.RawMessage
}

// Remove deletes a sub-key, an indexed array element, or a matching array
// value. No-op (not an error) if the target is already absent.
func (s *Store) Remove(leagueId, date, key string, sel *RemoveSelector) error {
	path := docPath(leagueId, date)
	h := s.locks.Acquire(path)
	defer h.Release()

	doc, err := s.readDoc(path)
	if err != nil {
		return err
	}
	if err := applyRemove(doc, key, sel); err != nil {
		return err
	}
	return s.writeDoc(path, doc)
}

func applyRemove(doc document, key string, sel *RemoveSelector) error {
	raw, exists := doc[key]
	if !exists {
		return nil
	}
	if sel == nil {
		delete(doc, key)
		return nil
	}
	if sel.SubKey != "" {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return ParseErrorf(err, "key %q is not an object", key)
		}
		delete(obj, sel.SubKey)
		out, _ := json.Marshal(obj)
		doc[key] = out
		return nil
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return ParseErrorf(err, "key %q is not an array", key)
	}
	switch {
	case sel.Value != nil:
		out := arr[:0]
		for _, el := range arr {
			if string(el) != string(sel.Value) {
				out = append(out, el)
			}
		}
		arr = out
	case sel.Index != nil:
		if *sel.Index < 0 || *sel.Index >= len(arr) {
			return nil
		}
		arr = append(arr[:*sel.Index], arr[*sel.Index+1:]...)
	}
	out, _ := json.Marshal(arr)
	doc[key] = out
	return nil
}

// OpKind enumerates the mutation kinds a SetMany batch can contain.
type OpKind int

const (
	OpSet OpKind = iota
	OpRemove
)

// Operation is one step of a SetMany batch.
type Operation struct {
	Kind     OpKind
	Key      string
	Value    json.RawMessage
	Options  SetOptions
	Selector *RemoveSelector
}

// SetMany acquires the file mutex once and applies an ordered list of
// mutations, writing the document exactly once (spec §4.B). A failing
// step aborts the whole batch, leaving the file on disk unchanged.
func (s *Store) SetMany(leagueId, date string, ops []Operation) error {
	path := docPath(leagueId, date)
	h := s.locks.Acquire(path)
	defer h.Release()

	doc, err := s.readDoc(path)
	if err != nil {
		return err
	}

	working := make(document, len(doc))
	for k, v := range doc {
		working[k] = v
	}

	for i, op := range ops {
		switch op.Kind {
		case OpSet:
			applySet(working, op.Key, op.Value, op.Options)
		case OpRemove:
			if err := applyRemove(working, op.Key, op.Selector); err != nil {
				return wrapErr(ErrKind(err), "setMany op", err).withIndex(i)
			}
		}
	}
	return s.writeDoc(path, working)
}

func (e *Error) withIndex(i int) *Error {
	e.details = "operation index " + strconv.Itoa(i)
	return e
}

// SessionDates lists every ISO-date session document stored for leagueId,
// sorted ascending, for callers (e.g. the ranking engine) that need to
// replay a league's whole session archive (spec §4.I).
func (s *Store) SessionDates(leagueId string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dataDir, leagueId))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, IOErrorf(err, "listing sessions for league %q", leagueId)
	}
	var dates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if ext != ".json" {
			continue
		}
		date := strings.TrimSuffix(name, ext)
		if ValidDate(date) {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)
	return dates, nil
}

// ReachLockPath returns the path under which the store locks the document
// at (leagueId, date), for callers that take several document locks
// together in lexical order (spec §5).
func (s *Store) ReachLockPath(leagueId, date string) string {
	return docPath(leagueId, date)
}

// Locks exposes the registry so multi-file handlers can acquire several
// document locks at once in lexical order.
func (s *Store) Locks() *MutexRegistry {
	return s.locks
}
