package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServer_Config_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "missing asker", cfg: Config{Profiles: testProfiles()}, wantErr: "asker is required"},
		{name: "missing profiles", cfg: Config{Asker: &mockAsker{}}, wantErr: "profiles are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.EqualError(t, tt.cfg.Validate(), tt.wantErr)
		})
	}
}

func TestServer_Config_Validate_Defaults(t *testing.T) {
	t.Parallel()

	cfg := Config{Asker: &mockAsker{}, Profiles: testProfiles()}
	require.NoError(t, cfg.Validate())
	require.Equal(t, defaultShutdownTimeout, cfg.ShutdownTimeout)
	require.Equal(t, defaultReadHeaderTimeout, cfg.ReadHeaderTimeout)
	require.Equal(t, defaultWriteTimeout, cfg.WriteTimeout)
	require.Equal(t, int64(defaultMaxBodySize), cfg.MaxBodySize)
}
