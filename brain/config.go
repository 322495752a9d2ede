package brain

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RankWeights are the coefficients of the query engine's composite score:
// a weighted sum of text match, semantic similarity, edge strength to an
// already-ranked hit, and emotional weight.
type RankWeights struct {
	Text      float64 `yaml:"text"`
	Semantic  float64 `yaml:"semantic"`
	Graph     float64 `yaml:"graph"`
	Emotional float64 `yaml:"emotional"`
}

// Config holds every tunable of the memory engine. The defaults carry the
// values the system shipped with; none of them is load-bearing for
// correctness, only for behavior.
type Config struct {
	// Connection discovery.
	SimilarityThreshold         float64       `yaml:"similarity_threshold"`          // min cosine similarity for a semantic edge
	ConnectionStrengthThreshold float64       `yaml:"connection_strength_threshold"` // edges decaying below this are pruned
	ContextualStrength          float64       `yaml:"contextual_strength"`           // fixed strength of same-project edges
	TemporalWindow              time.Duration `yaml:"temporal_window"`               // max creation gap for a temporal edge
	TemporalMaxStrength         float64       `yaml:"temporal_max_strength"`         // temporal strength at zero gap
	ReinforcementRate           float64       `yaml:"reinforcement_rate"`            // learning-rate step toward 1.0
	IntegrationScale            float64       `yaml:"integration_scale"`             // incident strength total that saturates integration depth

	// Lifecycle.
	PromotionThreshold     int           `yaml:"promotion_threshold"`      // access count: active -> stable, layer promotion
	ConsolidationThreshold int           `yaml:"consolidation_threshold"`  // access count: stable -> consolidated
	ConsolidationMinDepth  float64       `yaml:"consolidation_min_depth"`  // min integration depth for consolidation
	ShortTermLimit         int           `yaml:"short_term_limit"`         // capacity of the working-memory tier
	BaseDecayWindow        time.Duration `yaml:"base_decay_window"`        // idle window at decay rate 1.0
	EdgeHalfLife           time.Duration `yaml:"edge_half_life"`           // strength halves per idle half-life
	ProtectedWeight        float64       `yaml:"protected_weight"`         // nodes at or above this weight are never demoted for capacity

	// Query.
	QueryLimit      int           `yaml:"query_limit"`       // default result limit
	GraphDepth      int           `yaml:"graph_depth"`       // max hops for graph expansion
	GraphDepthDecay float64       `yaml:"graph_depth_decay"` // score multiplier per hop
	SimilarityFloor float64       `yaml:"similarity_floor"`  // min per-strategy score to keep a candidate
	CacheTTL        time.Duration `yaml:"cache_ttl"`         // result cache freshness bound
	EmbedTimeout    time.Duration `yaml:"embed_timeout"`     // bound on the embedding provider call
	RankWeights     RankWeights   `yaml:"rank_weights"`

	// Decisions.
	HighConfidence float64 `yaml:"high_confidence"` // at or above: reuse or adapt
	LowConfidence  float64 `yaml:"low_confidence"`  // below: search externally or create
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() *Config {
	return &Config{
		SimilarityThreshold:         0.7,
		ConnectionStrengthThreshold: 0.3,
		ContextualStrength:          0.6,
		TemporalWindow:              24 * time.Hour,
		TemporalMaxStrength:         0.4,
		ReinforcementRate:           0.1,
		IntegrationScale:            5.0,

		PromotionThreshold:     5,
		ConsolidationThreshold: 10,
		ConsolidationMinDepth:  0.3,
		ShortTermLimit:         50,
		BaseDecayWindow:        72 * time.Hour,
		EdgeHalfLife:           14 * 24 * time.Hour,
		ProtectedWeight:        0.9,

		QueryLimit:      20,
		GraphDepth:      2,
		GraphDepthDecay: 0.8,
		SimilarityFloor: 0.1,
		CacheTTL:        time.Hour,
		EmbedTimeout:    3 * time.Second,
		RankWeights: RankWeights{
			Text:      1.0,
			Semantic:  1.0,
			Graph:     0.6,
			Emotional: 0.3,
		},

		HighConfidence: 0.7,
		LowConfidence:  0.4,
	}
}

// LoadConfig reads a YAML configuration file over the defaults, so a file
// only needs to name the fields it overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// configYAML mirrors Config with optional fields, so a file overrides only
// what it names. Durations are strings in "72h" form.
type configYAML struct {
	SimilarityThreshold         *float64 `yaml:"similarity_threshold"`
	ConnectionStrengthThreshold *float64 `yaml:"connection_strength_threshold"`
	ContextualStrength          *float64 `yaml:"contextual_strength"`
	TemporalWindow              *string  `yaml:"temporal_window"`
	TemporalMaxStrength         *float64 `yaml:"temporal_max_strength"`
	ReinforcementRate           *float64 `yaml:"reinforcement_rate"`
	IntegrationScale            *float64 `yaml:"integration_scale"`

	PromotionThreshold     *int     `yaml:"promotion_threshold"`
	ConsolidationThreshold *int     `yaml:"consolidation_threshold"`
	ConsolidationMinDepth  *float64 `yaml:"consolidation_min_depth"`
	ShortTermLimit         *int     `yaml:"short_term_limit"`
	BaseDecayWindow        *string  `yaml:"base_decay_window"`
	EdgeHalfLife           *string  `yaml:"edge_half_life"`
	ProtectedWeight        *float64 `yaml:"protected_weight"`

	QueryLimit      *int     `yaml:"query_limit"`
	GraphDepth      *int     `yaml:"graph_depth"`
	GraphDepthDecay *float64 `yaml:"graph_depth_decay"`
	SimilarityFloor *float64 `yaml:"similarity_floor"`
	CacheTTL        *string  `yaml:"cache_ttl"`
	EmbedTimeout    *string  `yaml:"embed_timeout"`
	RankWeights     *struct {
		Text      *float64 `yaml:"text"`
		Semantic  *float64 `yaml:"semantic"`
		Graph     *float64 `yaml:"graph"`
		Emotional *float64 `yaml:"emotional"`
	} `yaml:"rank_weights"`

	HighConfidence *float64 `yaml:"high_confidence"`
	LowConfidence  *float64 `yaml:"low_confidence"`
}

// UnmarshalYAML merges a YAML document into the receiver, leaving unnamed
// fields alone and parsing durations from "72h" style strings.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	var raw configYAML
	if err := node.Decode(&raw); err != nil {
		return err
	}

	setFloat(&c.SimilarityThreshold, raw.SimilarityThreshold)
	setFloat(&c.ConnectionStrengthThreshold, raw.ConnectionStrengthThreshold)
	setFloat(&c.ContextualStrength, raw.ContextualStrength)
	setFloat(&c.TemporalMaxStrength, raw.TemporalMaxStrength)
	setFloat(&c.ReinforcementRate, raw.ReinforcementRate)
	setFloat(&c.IntegrationScale, raw.IntegrationScale)
	setFloat(&c.ConsolidationMinDepth, raw.ConsolidationMinDepth)
	setFloat(&c.ProtectedWeight, raw.ProtectedWeight)
	setFloat(&c.GraphDepthDecay, raw.GraphDepthDecay)
	setFloat(&c.SimilarityFloor, raw.SimilarityFloor)
	setFloat(&c.HighConfidence, raw.HighConfidence)
	setFloat(&c.LowConfidence, raw.LowConfidence)

	setInt(&c.PromotionThreshold, raw.PromotionThreshold)
	setInt(&c.ConsolidationThreshold, raw.ConsolidationThreshold)
	setInt(&c.ShortTermLimit, raw.ShortTermLimit)
	setInt(&c.QueryLimit, raw.QueryLimit)
	setInt(&c.GraphDepth, raw.GraphDepth)

	for _, d := range []struct {
		name string
		dst  *time.Duration
		src  *string
	}{
		{"temporal_window", &c.TemporalWindow, raw.TemporalWindow},
		{"base_decay_window", &c.BaseDecayWindow, raw.BaseDecayWindow},
		{"edge_half_life", &c.EdgeHalfLife, raw.EdgeHalfLife},
		{"cache_ttl", &c.CacheTTL, raw.CacheTTL},
		{"embed_timeout", &c.EmbedTimeout, raw.EmbedTimeout},
	} {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = v
	}

	if raw.RankWeights != nil {
		setFloat(&c.RankWeights.Text, raw.RankWeights.Text)
		setFloat(&c.RankWeights.Semantic, raw.RankWeights.Semantic)
		setFloat(&c.RankWeights.Graph, raw.RankWeights.Graph)
		setFloat(&c.RankWeights.Emotional, raw.RankWeights.Emotional)
	}
	return nil
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1], got %v", c.SimilarityThreshold)
	}
	if c.ReinforcementRate <= 0 || c.ReinforcementRate > 1 {
		return fmt.Errorf("reinforcement_rate must be in (0,1], got %v", c.ReinforcementRate)
	}
	if c.ShortTermLimit <= 0 {
		return fmt.Errorf("short_term_limit must be positive, got %d", c.ShortTermLimit)
	}
	if c.GraphDepth < 0 {
		return fmt.Errorf("graph_depth must not be negative, got %d", c.GraphDepth)
	}
	if c.BaseDecayWindow <= 0 {
		return fmt.Errorf("base_decay_window must be positive, got %v", c.BaseDecayWindow)
	}
	return nil
}
