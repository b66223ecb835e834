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
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// Config holds the process-wide settings resolved from flags, environment
// variables, and an optional .env file, in that order of precedence (spec
// §6's ambient configuration surface).
type Config struct {
	Addr             string
	DataDir          string
	APIKey           string
	AllowedOrigins   []string
	ResetTokenSecret string
	BodySizeLimit    int64
	Dev              bool
}

// LoadConfig parses args against the flag set, overlaying values from a
// .env file (if present) and the process environment, the way the
// teacher's entrypoint composes its Options.
func LoadConfig(args []string) (Config, error) {
	_ = godotenv.Load() // best-effort; absence of .env is not an error

	fs := pflag.NewFlagSet("leagr", pflag.ContinueOnError)
	addr := fs.String("addr", envOr("ADDR", ":8080"), "listen address")
	dataDir := fs.String("data-dir", envOr("DATA_DIR", "./data"), "root directory for league data")
	apiKey := fs.String("api-key", envOr("API_KEY", ""), "shared x-api-key required of every request")
	allowedOrigins := fs.String("allowed-origin", envOr("ALLOWED_ORIGIN", ""), "comma-separated CORS origin allow-list, supports *.example.com")
	resetSecret := fs.String("reset-token-secret", envOr("RESET_TOKEN_SECRET", ""), "HMAC secret for access-code reset tokens")
	bodyLimit := fs.Int64("body-size-limit", envOrInt64("BODY_SIZE_LIMIT", 1<<20), "maximum request body size in bytes")
	dev := fs.Bool("dev", envOrBool("DEV", false), "enable verbose development logging")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Addr:             *addr,
		DataDir:          *dataDir,
		APIKey:           *apiKey,
		AllowedOrigins:   splitNonEmpty(*allowedOrigins),
		ResetTokenSecret: *resetSecret,
		BodySizeLimit:    *bodyLimit,
		Dev:              *dev,
	}
	if cfg.APIKey == "" {
		return Config{}, Validationf("API_KEY (or --api-key) must be set")
	}
	if cfg.ResetTokenSecret == "" {
		return Config{}, Validationf("RESET_TOKEN_SECRET (or --reset-token-secret) must be set")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envOrInt64(key string, fallback int64) int64 {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envOrBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitNonEmpty(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NewLogger builds the process logger: a human-readable development
// config when cfg.Dev is set, otherwise structured JSON suited to log
// aggregation.
func NewLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
