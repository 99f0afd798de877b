package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 10, cfg.Pipeline.ArtifactLimit)
	assert.Equal(t, "postgres", cfg.Ledger.Driver)
	assert.Equal(t, "sftp", cfg.Primary.Provider)
	assert.Equal(t, 22, cfg.Downstream.Port)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadEndpointPrefixes(t *testing.T) {
	t.Setenv("PRIMARY_HOST", "ag.example.org")
	t.Setenv("PRIMARY_PDF_PATH", "/ag/pdf")
	t.Setenv("DOWNSTREAM_PROVIDER", "minio")
	t.Setenv("DOWNSTREAM_S3_BUCKET", "hrms")
	t.Setenv("DOWNSTREAM_DIAL_TIMEOUT", "3s")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("PIPELINE_ARTIFACT_LIMIT", "50")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ag.example.org", cfg.Primary.Host)
	assert.Equal(t, "/ag/pdf", cfg.Primary.PDFPath)
	assert.Equal(t, "localhost", cfg.Downstream.Host)
	assert.Equal(t, "minio", cfg.Downstream.Provider)
	assert.Equal(t, "hrms", cfg.Downstream.Bucket)
	assert.Equal(t, 3*time.Second, cfg.Downstream.DialTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 50, cfg.Pipeline.ArtifactLimit)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Run("limit", func(t *testing.T) {
		t.Setenv("PIPELINE_ARTIFACT_LIMIT", "0")
		_, err := Load()
		require.Error(t, err)
	})
	t.Run("driver", func(t *testing.T) {
		t.Setenv("LEDGER_DRIVER", "oracle")
		_, err := Load()
		require.ErrorContains(t, err, "unsupported ledger driver")
	})
}
