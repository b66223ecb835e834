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

func TestLoadConfig_RequiresAPIKeyAndResetSecret(t *testing.T) {
	_, err := LoadConfig([]string{"--data-dir", t.TempDir()})
	require.Error(t, err)
}

func TestLoadConfig_FlagsOverrideDefaults(t *testing.T) {
	cfg, err := LoadConfig([]string{
		"--data-dir", t.TempDir(),
		"--api-key", "k",
		"--reset-token-secret", "s",
		"--allowed-origin", "a.com, b.com",
		"--addr", ":9090",
	})
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, []string{"a.com", "b.com"}, cfg.AllowedOrigins)
}
