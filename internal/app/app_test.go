package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jason-s-yu/ohhell/internal/auth"
	"github.com/jason-s-yu/ohhell/internal/config"
	"github.com/jason-s-yu/ohhell/internal/game"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenLocalOnlyPersistsAcrossRestarts(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg, err := config.FromEnv(func(key string) string {
		if key == "SQLITE_PATH" {
			return filepath.Join(t.TempDir(), "ohhell.db")
		}
		return ""
	})
	require.NoError(t, err)

	a, err := Open(context.Background(), cfg, logger)
	require.NoError(t, err)
	assert.Equal(t, game.SinkLocal, a.Source)
	assert.Nil(t, a.Remote)
	assert.Nil(t, a.Cache)

	p, err := a.Games.AddPlayer(auth.RoleLimited, "Ann")
	require.NoError(t, err)
	a.Close()

	b, err := Open(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer b.Close()
	got, err := b.Games.GetPlayer(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Name)
}
