package memory

import "querycost/pkg/types"

// UsageLevel classifies estimated memory usage into bands.
type UsageLevel int

const (
	UsageLow UsageLevel = iota
	UsageMedium
	UsageHigh
	UsageCritical
)

func (l UsageLevel) String() string {
	switch l {
	case UsageLow:
		return "low"
	case UsageMedium:
		return "medium"
	case UsageHigh:
		return "high"
	case UsageCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// PressureLevel classifies how much of the host's memory is already used.
type PressureLevel int

const (
	PressureAvailable PressureLevel = iota
	PressureLow
	PressureMedium
	PressureHigh
	PressureCritical
)

func (l PressureLevel) String() string {
	switch l {
	case PressureAvailable:
		return "available"
	case PressureLow:
		return "low"
	case PressureMedium:
		return "medium"
	case PressureHigh:
		return "high"
	case PressureCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Thresholds are the ascending byte boundaries for usage classification.
type Thresholds struct {
	Low      int64
	Medium   int64
	High     int64
	Critical int64
}

// Classify maps total usage to its level. The highest exceeded threshold
// wins, so checks run descending from critical. Totals at or below the low
// threshold stay low.
func (t Thresholds) Classify(total int64) UsageLevel {
	switch {
	case total > t.Critical:
		return UsageCritical
	case total > t.High:
		return UsageHigh
	case total > t.Medium:
		return UsageMedium
	default:
		return UsageLow
	}
}

// Usage is one memory-usage estimate: a base working set plus
// per-operation contributions.
type Usage struct {
	// Base is rowCount × rowSize, the raw working set in bytes.
	Base int64

	// PerOperation maps each contributing operation to its bytes.
	PerOperation map[types.Operation]int64

	// Total is Base plus all per-operation contributions.
	Total int64

	// Level classifies Total against the model's thresholds.
	Level UsageLevel
}

// Pressure describes how loaded the host is and how strongly costs should
// be scaled in response.
type Pressure struct {
	AvailableMemory int64
	TotalMemory     int64

	// Ratio is 1 - available/total, in [0,1] for sane inputs.
	Ratio float64

	Level PressureLevel

	// Factor is the cost multiplier the model applies for this level.
	Factor float64
}

// classifyPressure maps a pressure ratio to its level. First match wins,
// checked descending.
func classifyPressure(ratio float64) PressureLevel {
	switch {
	case ratio > 0.9:
		return PressureCritical
	case ratio > 0.75:
		return PressureHigh
	case ratio > 0.5:
		return PressureMedium
	case ratio > 0.25:
		return PressureLow
	default:
		return PressureAvailable
	}
}
