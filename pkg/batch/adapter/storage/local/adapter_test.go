package local_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	storageconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/local"
	coreconfig "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

func newResolver(t *testing.T) (*storage.ConnectionResolver, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "exports")
	cfg := coreconfig.NewConfig()
	cfg.Storage["exports"] = map[string]interface{}{"type": "local", "base_dir": dir, "bucket_name": "orders"}
	cfg.Storage["archive"] = map[string]interface{}{"type": "gcs", "bucket_name": "archive"}
	r := storage.NewConnectionResolver(storage.ResolverParams{
		Providers: []storage.StorageProvider{local.NewLocalProvider(cfg)},
		Cfg:       cfg,
	})
	return r, dir
}

func TestLocalAdapter_UploadListDownloadDelete(t *testing.T) {
	ctx := context.Background()
	r, dir := newResolver(t)
	conn, err := r.ResolveStorageConnection(ctx, "exports")
	require.NoError(t, err)
	assert.Equal(t, "local", conn.Type())

	require.NoError(t, conn.Upload(ctx, "", "dt=2024-01-01/a.parquet", strings.NewReader("aaa"), "application/octet-stream"))
	require.NoError(t, conn.Upload(ctx, "", "dt=2024-01-02/b.parquet", strings.NewReader("bbb"), "application/octet-stream"))
	assert.FileExists(t, filepath.Join(dir, "orders", "dt=2024-01-01", "a.parquet"))

	var names []string
	require.NoError(t, conn.ListObjects(ctx, "", "", func(name string) error {
		names = append(names, name)
		return nil
	}))
	sort.Strings(names)
	assert.Equal(t, []string{"dt=2024-01-01/a.parquet", "dt=2024-01-02/b.parquet"}, names)

	names = nil
	require.NoError(t, conn.ListObjects(ctx, "", "dt=2024-01-02", func(name string) error {
		names = append(names, name)
		return nil
	}))
	assert.Equal(t, []string{"dt=2024-01-02/b.parquet"}, names)

	rc, err := conn.Download(ctx, "", "dt=2024-01-01/a.parquet")
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = io.Copy(&buf, rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "aaa", buf.String())

	require.NoError(t, conn.DeleteObject(ctx, "", "dt=2024-01-01/a.parquet"))
	require.NoError(t, conn.DeleteObject(ctx, "", "dt=2024-01-01/a.parquet"))
	_, err = os.Stat(filepath.Join(dir, "orders", "dt=2024-01-01", "a.parquet"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, r.CloseAll())
}

func TestLocalAdapter_RejectsEscapingPaths(t *testing.T) {
	r, _ := newResolver(t)
	conn, err := r.ResolveStorageConnection(context.Background(), "exports")
	require.NoError(t, err)
	err = conn.Upload(context.Background(), "", "../../outside.txt", strings.NewReader("x"), "text/plain")
	assert.ErrorContains(t, err, "outside of base_dir")
}

func TestResolver_Errors(t *testing.T) {
	r, _ := newResolver(t)
	_, err := r.ResolveStorageConnection(context.Background(), "missing")
	assert.ErrorContains(t, err, "not found")
	_, err = r.ResolveStorageConnection(context.Background(), "archive")
	assert.ErrorContains(t, err, "no storage provider found for type 'gcs'")
}

func TestNewLocalAdapter_BaseDirIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err := local.NewLocalAdapter(storageConfigFor(file), "exports")
	assert.ErrorContains(t, err, "not a directory")
}

func storageConfigFor(dir string) storageconfig.StorageConfig {
	return storageconfig.StorageConfig{Type: "local", BaseDir: dir}
}
