package gcs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/gcs"
	coreconfig "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

func TestNewGCSAdapter_RequiresBucket(t *testing.T) {
	_, err := gcs.NewGCSAdapter(config.StorageConfig{Type: "gcs", Endpoint: "http://localhost:4443/storage/v1/"}, "exports")
	assert.ErrorContains(t, err, "bucket_name")
}

func TestNewGCSAdapter_EmulatorEndpoint(t *testing.T) {
	cfg := config.StorageConfig{Type: "gcs", BucketName: "orders", Endpoint: "http://localhost:4443/storage/v1/"}
	assert.Len(t, gcs.ClientOptions(cfg), 2)

	conn, err := gcs.NewGCSAdapter(cfg, "exports")
	require.NoError(t, err)
	assert.Equal(t, "gcs", conn.Type())
	assert.Equal(t, "exports", conn.Name())
	assert.NoError(t, conn.Close())
}

func TestGCSProvider_TypeMismatch(t *testing.T) {
	cfg := coreconfig.NewConfig()
	cfg.Storage["exports"] = map[string]interface{}{"type": "local", "base_dir": t.TempDir()}

	p := gcs.NewGCSProvider(cfg)
	assert.Equal(t, "gcs", p.Type())
	_, err := p.GetConnection("exports")
	assert.ErrorContains(t, err, "type mismatch")
}
