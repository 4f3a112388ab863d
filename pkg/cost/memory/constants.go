package memory

import "querycost/pkg/types"

const (
	KiB = 1 << 10
	MiB = 1 << 20
	GiB = 1 << 30

	// DefaultRowSize is assumed when neither statistics nor context supply
	// an average row width.
	DefaultRowSize = 100

	// Host defaults when the context carries no memory figures
	DefaultAvailableMemory = 1 * GiB
	DefaultTotalMemory     = 8 * GiB

	// DefaultHistorySize caps the usage history (FIFO, oldest dropped).
	DefaultHistorySize = 100
)

// Config carries every tunable of the memory-aware model. Zero-value maps
// and fields are filled from the defaults by New.
type Config struct {
	// BytesPerRow is the per-operation memory rate in bytes per row.
	BytesPerRow map[types.Operation]int64

	// BaseCosts is the fixed per-operation cost before scaling.
	BaseCosts map[types.Operation]float64

	// UsageWeights scales costs by the estimate's usage level.
	UsageWeights map[UsageLevel]float64

	// PressureFactors scales costs by the host's pressure level.
	PressureFactors map[PressureLevel]float64

	// UsageThresholds classify total usage into levels.
	UsageThresholds Thresholds

	RowSize         int64
	AvailableMemory int64
	TotalMemory     int64
	HistorySize     int
}

// DefaultConfig returns the model's default tuning.
func DefaultConfig() Config {
	return Config{
		BytesPerRow: map[types.Operation]int64{
			types.OpScan:      100,
			types.OpFilter:    50,
			types.OpSort:      200,
			types.OpProject:   50,
			types.OpJoin:      300,
			types.OpAggregate: 250,
			types.OpIndex:     150,
		},
		BaseCosts: map[types.Operation]float64{
			types.OpScan:    100,
			types.OpFilter:  50,
			types.OpSort:    200,
			types.OpProject: 50,
			types.OpLimit:   10,
			types.OpSkip:    20,
		},
		UsageWeights: map[UsageLevel]float64{
			UsageLow:      1.0,
			UsageMedium:   1.5,
			UsageHigh:     2.5,
			UsageCritical: 4.0,
		},
		PressureFactors: map[PressureLevel]float64{
			PressureAvailable: 1.0,
			PressureLow:       1.2,
			PressureMedium:    1.5,
			PressureHigh:      2.0,
			PressureCritical:  3.0,
		},
		UsageThresholds: Thresholds{
			Low:      10 * MiB,
			Medium:   100 * MiB,
			High:     500 * MiB,
			Critical: 1 * GiB,
		},
		RowSize:         DefaultRowSize,
		AvailableMemory: DefaultAvailableMemory,
		TotalMemory:     DefaultTotalMemory,
		HistorySize:     DefaultHistorySize,
	}
}

// normalize fills gaps in a caller-supplied config from the defaults so a
// partially specified Config is always usable.
func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.BytesPerRow == nil {
		c.BytesPerRow = def.BytesPerRow
	}
	if c.BaseCosts == nil {
		c.BaseCosts = def.BaseCosts
	}
	if c.UsageWeights == nil {
		c.UsageWeights = def.UsageWeights
	}
	if c.PressureFactors == nil {
		c.PressureFactors = def.PressureFactors
	}
	if c.UsageThresholds == (Thresholds{}) {
		c.UsageThresholds = def.UsageThresholds
	}
	if c.RowSize <= 0 {
		c.RowSize = def.RowSize
	}
	if c.AvailableMemory <= 0 {
		c.AvailableMemory = def.AvailableMemory
	}
	if c.TotalMemory <= 0 {
		c.TotalMemory = def.TotalMemory
	}
	if c.HistorySize <= 0 {
		c.HistorySize = def.HistorySize
	}
	return c
}
