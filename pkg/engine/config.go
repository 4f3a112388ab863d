package engine

// DefaultHistorySize caps the estimation history when the configuration
// does not say otherwise.
const DefaultHistorySize = 100

// Config holds configuration for the engine.
type Config struct {
	// DefaultModel is used when a call does not name a model.
	DefaultModel string

	// AdaptiveLearning gates UpdateModel. When false every update call is
	// a no-op returning false.
	AdaptiveLearning bool

	// LearningRate and AnomalyThreshold are injected into the context of
	// every update call, overriding whatever the caller supplied.
	LearningRate     float64
	AnomalyThreshold float64

	// HistorySize bounds the estimation history; the oldest entry is
	// evicted once the bound is reached.
	HistorySize int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		DefaultModel:     "statistical",
		AdaptiveLearning: true,
		LearningRate:     0.1,
		AnomalyThreshold: 2.0,
		HistorySize:      DefaultHistorySize,
	}
}

// normalize clamps out-of-range values back to usable defaults.
func (c *Config) normalize() {
	if c.DefaultModel == "" {
		c.DefaultModel = "statistical"
	}
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		c.LearningRate = 0.1
	}
	if c.AnomalyThreshold <= 0 {
		c.AnomalyThreshold = 2.0
	}
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
}
