// SPDX-License-Identifier: MIT
package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name                        string
		appName, time, commit, vers string
		wantErr                     string
	}{
		{"Missing BuildName", "", "2025-04-13", "abcdef123", "v1.0.0", "BuildName: build flag is required"},
		{"Missing BuildTime", "fx", "", "abcdef123", "v1.0.0", "BuildTime: build flag is required"},
		{"Missing BuildCommit", "fx", "2025-04-13", "", "v1.0.0", "BuildCommit: build flag is required"},
		{"Missing BuildVersion", "fx", "2025-04-13", "abcdef123", "", "BuildVersion: build flag is required"},
		{"Success Case", "fx", "2025-04-13", "abcdef123", "v1.0.0", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buildInfo = devInfo()
			buildName, buildTime, buildCommit, buildVersion = tt.appName, tt.time, tt.commit, tt.vers
			t.Cleanup(func() {
				buildName, buildTime, buildCommit, buildVersion = "", "", "", ""
				buildInfo = devInfo()
			})

			err := Initialize()
			if tt.wantErr != "" {
				require.ErrorIs(t, err, ErrMissing)
				assert.EqualError(t, err, tt.wantErr)
				assert.Equal(t, devInfo(), Get(), "defaults kept")
				return
			}

			require.NoError(t, err)
			info := Get()
			assert.Equal(t, tt.appName, info.Name)
			assert.Equal(t, tt.time, info.Time)
			assert.Equal(t, tt.commit, info.Commit)
			assert.Equal(t, tt.vers, info.Version)
			assert.Equal(t, "fx v1.0.0 (commit abcdef123, built 2025-04-13)", info.String())
		})
	}
}
