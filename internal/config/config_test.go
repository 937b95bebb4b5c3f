package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("GRADEFLOW_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, 10, cfg.UploadMaxSizeMB)
	require.Equal(t, "cloudinary", cfg.StorageProvider)
	require.Equal(t, "openai", cfg.OCRProvider)
	require.Equal(t, 45*time.Second, cfg.GradingTimeout)
	require.Equal(t, 2*time.Minute, cfg.ReviewCacheTTL)
	require.Equal(t, "none", cfg.EventsProvider)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("GRADEFLOW_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsInvalidDurations(t *testing.T) {
	t.Setenv("GRADEFLOW_JWT_SECRET", "secret")
	t.Setenv("GRADEFLOW_AI_GRADING_TIMEOUT", "soon")

	_, err := Load()
	require.ErrorContains(t, err, "ai.grading_timeout")
}

func TestLoadRejectsUnknownStorageProvider(t *testing.T) {
	t.Setenv("GRADEFLOW_JWT_SECRET", "secret")
	t.Setenv("GRADEFLOW_STORAGE_PROVIDER", "ftp")

	_, err := Load()
	require.ErrorContains(t, err, "storage provider")
}

func TestHTTPAddressKeepsColonPrefix(t *testing.T) {
	cfg := Config{AppPort: ":9000"}
	require.Equal(t, ":9000", cfg.HTTPAddress())
}
