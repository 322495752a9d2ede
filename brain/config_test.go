package brain

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brain.yaml")
	doc := `
similarity_threshold: 0.55
short_term_limit: 10
cache_ttl: 30m
rank_weights:
  semantic: 2.0
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0.55, cfg.SimilarityThreshold)
	assert.Equal(t, 10, cfg.ShortTermLimit)
	assert.Equal(t, 30*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 2.0, cfg.RankWeights.Semantic)
	// Untouched fields keep their defaults.
	assert.Equal(t, DefaultConfig().PromotionThreshold, cfg.PromotionThreshold)
	assert.Equal(t, DefaultConfig().RankWeights.Text, cfg.RankWeights.Text)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"similarity out of range", func(c *Config) { c.SimilarityThreshold = 1.5 }},
		{"zero reinforcement", func(c *Config) { c.ReinforcementRate = 0 }},
		{"zero capacity", func(c *Config) { c.ShortTermLimit = 0 }},
		{"negative depth", func(c *Config) { c.GraphDepth = -1 }},
		{"zero decay window", func(c *Config) { c.BaseDecayWindow = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
