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
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// signResetToken mints a short-lived HS256 JWT carrying resetClaims,
// standing in for a server-side single-use-code table (spec §4.C).
func signResetToken(secret []byte, claims resetClaims) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"leagueId": claims.LeagueID,
		"purpose":  claims.Purpose,
		"nonce":    claims.Nonce,
		"iat":      now.Unix(),
		"exp":      now.Add(30 * time.Minute).Unix(),
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", IOErrorf(err, "signing reset token")
	}
	return signed, nil
}

func verifyResetToken(secret []byte, raw string) (resetClaims, error) {
	var out resetClaims
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, Authf("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return out, Authf("invalid reset token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return out, Authf("invalid reset token claims")
	}
	out.LeagueID, _ = claims["leagueId"].(string)
	out.Purpose, _ = claims["purpose"].(string)
	out.Nonce, _ = claims["nonce"].(string)
	return out, nil
}

// HMACOwnership returns the ownership tag stored against a player name,
// binding it to a client id without revealing the league secret
// (spec §3: ownership[name] = hmacSha256(clientId, leagueSecret)).
func HMACOwnership(clientId, leagueSecret string) string {
	mac := hmac.New(sha256.New, []byte(leagueSecret))
	mac.Write([]byte(clientId))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyOwnership reports whether clientId produced the stored ownership
// tag under leagueSecret.
func VerifyOwnership(stored, clientId, leagueSecret string) bool {
	return constantTimeEqual(stored, HMACOwnership(clientId, leagueSecret))
}

// RequestContext carries the per-request values spec §9 calls for
// explicitly, instead of process-global mutable state: the resolved
// league, the caller's client id, whether the caller presented a valid
// admin code, and the current time.
type RequestContext struct {
	LeagueID  string
	ClientID  string
	IsAdmin   bool
	Now       time.Time
}

type ctxKey int

const requestContextKey ctxKey = iota

// WithRequestContext attaches rc to ctx.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// FromContext retrieves the RequestContext attached by AuthMiddleware.
func FromContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey).(RequestContext)
	return rc, ok
}

func isValidClientID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// AuthMiddleware enforces the header contract of spec §6: a constant-time
// x-api-key check, a well-formed x-client-id, a per-league Authorization
// access code (skipped for league-creation/authentication endpoints), and
// optional x-admin-code uplift.
func AuthMiddleware(apiKey string, dir *Directory, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get("x-api-key")
		if apiKey == "" || !constantTimeEqual(presented, apiKey) {
			WriteError(w, Authf("missing or invalid x-api-key"))
			return
		}

		clientId := r.Header.Get("x-client-id")
		if clientId == "" || !isValidClientID(clientId) {
			WriteError(w, Validationf("missing or invalid x-client-id"))
			return
		}

		leagueId, err := ResolveTenant(r.Host)
		if err != nil {
			WriteError(w, err)
			return
		}

		if isPublicLeaguePath(r.URL.Path) {
			rc := RequestContext{LeagueID: leagueId, ClientID: clientId, Now: time.Now().UTC()}
			next.ServeHTTP(w, r.WithContext(WithRequestContext(r.Context(), rc)))
			return
		}

		if !dir.Exists(leagueId) {
			WriteError(w, NotFoundf("unknown league %q", leagueId))
			return
		}

		accessCode := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if err := dir.Authenticate(leagueId, accessCode); err != nil {
			WriteError(w, err)
			return
		}

		isAdmin, err := dir.VerifyAdminCode(leagueId, r.Header.Get("x-admin-code"))
		if err != nil {
			WriteError(w, err)
			return
		}

		rc := RequestContext{
			LeagueID: leagueId,
			ClientID: clientId,
			IsAdmin:  isAdmin,
			Now:      time.Now().UTC(),
		}
		next.ServeHTTP(w, r.WithContext(WithRequestContext(r.Context(), rc)))
	})
}

func isPublicLeaguePath(path string) bool {
	switch path {
	case "/api/leagues", "/api/leagues/authenticate", "/api/leagues/reset-access-code":
		return true
	default:
		return false
	}
}

// OriginAllowed reports whether origin matches one of the comma-separated
// allow-list patterns (supporting a leading "*." wildcard), per spec §6.
func OriginAllowed(origin string, patterns []string) bool {
	if origin == "" {
		return true
	}
	host := origin
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, "*.") {
			suffix := p[1:] // ".example.com"
			if strings.HasSuffix(host, suffix) {
				return true
			}
			continue
		}
		if p == host {
			return true
		}
	}
	return false
}
