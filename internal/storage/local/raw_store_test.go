// Package local_test tests the filesystem raw store.
package local_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/job-harvester/internal/crawler"
	"github.com/JakeFAU/job-harvester/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "raw")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestInsertIsExclusive(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	env := crawler.RawEnvelope{
		SourceURL:  "https://www.saramin.co.kr/zf_user/jobs/relay/view?rec_idx=1",
		Platform:   crawler.PlatformSaramin,
		RawContent: `{"job_id":"1"}`,
	}

	exists, err := store.Exists(ctx, env.SourceURL)
	require.NoError(t, err)
	assert.False(t, exists)

	wrote, err := store.Insert(ctx, env)
	require.NoError(t, err)
	assert.True(t, wrote)

	second := env
	second.RawContent = `{"job_id":"changed"}`
	wrote, err = store.Insert(ctx, second)
	require.NoError(t, err)
	assert.False(t, wrote)

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(store.Path(env.SourceURL))
	require.NoError(t, err)
	var got crawler.RawEnvelope
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, env, got)

	_, err = store.Insert(ctx, crawler.RawEnvelope{})
	assert.Error(t, err)
}
