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
	"crypto/rand"
	"encoding/json"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// reservedSubdomains can never be issued as league ids; they collide with
// the control surface or common infrastructure hostnames.
var reservedSubdomains = map[string]struct{}{
	"www": {}, "api": {}, "admin": {}, "app": {}, "static": {},
	"data": {}, "mail": {}, "ftp": {}, "localhost": {}, "leagr": {},
}

// League is the top-level per-tenant document (spec §3).
type League struct {
	ID             string          `json:"id"`
	DisplayName    string          `json:"displayName"`
	Icon           string          `json:"icon,omitempty"`
	AccessCode     string          `json:"accessCode"`
	AdminCode      string          `json:"adminCode,omitempty"`
	OwnerEmail     string          `json:"ownerEmail,omitempty"`
	DefaultSettings json.RawMessage `json:"defaultSettings,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Directory resolves tenants from request hosts and manages league
// lifecycle (spec §4.C). All paths it produces are rooted at
// data/<leagueId>/.
type Directory struct {
	store    *Store
	existCache *lru.Cache[string, bool]
	resetSecret []byte
}

// NewDirectory creates a Directory backed by store. resetSecret signs the
// short-lived access-code reset tokens (spec §4.C).
func NewDirectory(store *Store, resetSecret []byte) *Directory {
	cache, _ := lru.New[string, bool](4096)
	return &Directory{store: store, existCache: cache, resetSecret: resetSecret}
}

// subdomainPattern: 3-63 chars, [a-z0-9-], not starting/ending with '-'.
func validSubdomain(id string) bool {
	if len(id) < 3 || len(id) > 63 {
		return false
	}
	if id[0] == '-' || id[len(id)-1] == '-' {
		return false
	}
	for _, r := range id {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return false
		}
	}
	return true
}

// ResolveTenant extracts the league id from the first label of the host
// header, e.g. "my-league.example.com" -> "my-league". Returns a
// ValidationError for malformed or reserved subdomains.
func ResolveTenant(host string) (string, error) {
	host = strings.ToLower(host)
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	labels := strings.Split(host, ".")
	if len(labels) == 0 {
		return "", Validationf("empty host")
	}
	id := labels[0]
	if !validSubdomain(id) {
		return "", Validationf("invalid league id %q", id)
	}
	if _, reserved := reservedSubdomains[id]; reserved {
		return "", Validationf("%q is a reserved league id", id)
	}
	return id, nil
}

func randomAlnum(n int) (string, error) {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", IOErrorf(err, "generating random code")
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}

// GenerateAccessCode produces a fresh "XXXX-XXXX-XXXX" access code.
func GenerateAccessCode() (string, error) {
	parts := make([]string, 3)
	for i := range parts {
		p, err := randomAlnum(4)
		if err != nil {
			return "", err
		}
		parts[i] = p
	}
	return strings.Join(parts, "-"), nil
}

// Create issues a new league document with a freshly generated access
// code. Fails with Conflict if id already exists.
func (d *Directory) Create(id, displayName, ownerEmail string) (*League, error) {
	if !validSubdomain(id) {
		return nil, Validationf("invalid league id %q", id)
	}
	if _, reserved := reservedSubdomains[id]; reserved {
		return nil, Validationf("%q is a reserved league id", id)
	}
	if existing, _ := d.store.Get(id, "", "accessCode"); existing != nil {
		return nil, Conflictf("league %q already exists", id)
	}

	code, err := GenerateAccessCode()
	if err != nil {
		return nil, err
	}
	lg := &League{
		ID:          id,
		DisplayName: displayName,
		AccessCode:  code,
		OwnerEmail:  ownerEmail,
		CreatedAt:   time.Now().UTC(),
	}

	ops := make([]Operation, 0, 4)
	raw, _ := json.Marshal(lg.DisplayName)
	ops = append(ops, Operation{Kind: OpSet, Key: "displayName", Value: raw, Options: SetOptions{Overwrite: true}})
	raw, _ = json.Marshal(lg.AccessCode)
	ops = append(ops, Operation{Kind: OpSet, Key: "accessCode", Value: raw, Options: SetOptions{Overwrite: true}})
	raw, _ = json.Marshal(lg.OwnerEmail)
	ops = append(ops, Operation{Kind: OpSet, Key: "ownerEmail", Value: raw, Options: SetOptions{Overwrite: true}})
	raw, _ = json.Marshal(lg.CreatedAt)
	ops = append(ops, Operation{Kind: OpSet, Key: "createdAt", Value: raw, Options: SetOptions{Overwrite: true}})

	if err := d.store.SetMany(id, "", ops); err != nil {
		return nil, err
	}
	d.existCache.Add(id, true)
	return lg, nil
}

// Exists reports whether a league has been created, using a process-
// lifetime cache the way spec §5 describes ("runtime path resolution
// caches league existence").
func (d *Directory) Exists(id string) bool {
	if v, ok := d.existCache.Get(id); ok {
		return v
	}
	raw, err := d.store.Get(id, "", "accessCode")
	exists := err == nil && raw != nil
	d.existCache.Add(id, exists)
	return exists
}

// Authenticate verifies a presented access code against the league's
// stored one, constant-time.
func (d *Directory) Authenticate(id, accessCode string) error {
	raw, err := d.store.Get(id, "", "accessCode")
	if err != nil {
		return err
	}
	if raw == nil {
		return NotFoundf("league %q not found", id)
	}
	var stored string
	if err := json.Unmarshal(raw, &stored); err != nil {
		return ParseErrorf(err, "league %q access code corrupt", id)
	}
	if !constantTimeEqual(stored, accessCode) {
		return Forbiddenf("invalid access code")
	}
	return nil
}

// VerifyAdminCode checks a presented admin code. Absent admin code on the
// league document means no admin uplift is possible.
func (d *Directory) VerifyAdminCode(id, adminCode string) (bool, error) {
	raw, err := d.store.Get(id, "", "adminCode")
	if err != nil {
		return false, err
	}
	if raw == nil || adminCode == "" {
		return false, nil
	}
	var stored string
	if err := json.Unmarshal(raw, &stored); err != nil {
		return false, ParseErrorf(err, "league %q admin code corrupt", id)
	}
	return constantTimeEqual(stored, adminCode), nil
}

// resetClaims is the payload of a single-use access-code reset token.
type resetClaims struct {
	LeagueID string `json:"leagueId"`
	Purpose  string `json:"purpose"`
	Nonce    string `json:"nonce"`
}

// IssueResetToken mints a short-lived, single-purpose JWT standing in for
// an email-delivered reset code (spec §4.C). The token carries a random
// nonce, but no spent nonces are recorded: a token stays usable until it
// expires, so it is not single-use.
func (d *Directory) IssueResetToken(leagueId string) (string, error) {
	nonce, err := randomAlnum(16)
	if err != nil {
		return "", err
	}
	return signResetToken(d.resetSecret, resetClaims{LeagueID: leagueId, Purpose: "reset-access-code", Nonce: nonce})
}

// RotateAccessCode verifies the reset token, then replaces the league's
// access code. Callers are responsible for tracking spent nonces (e.g. in
// the league document) if replay protection beyond the token's short
// expiry is required.
func (d *Directory) RotateAccessCode(leagueId, token string) (string, error) {
	claims, err := verifyResetToken(d.resetSecret, token)
	if err != nil {
		return "", Forbiddenf("invalid or expired reset token")
	}
	if claims.LeagueID != leagueId || claims.Purpose != "reset-access-code" {
		return "", Forbiddenf("reset token does not match league")
	}
	code, err := GenerateAccessCode()
	if err != nil {
		return "", err
	}
	raw, _ := json.Marshal(code)
	if err := d.store.Set(leagueId, "", "accessCode", raw, SetOptions{Overwrite: true}); err != nil {
		return "", err
	}
	return code, nil
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := 0; i < len(a); i++ {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
