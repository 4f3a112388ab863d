package pushdown

// MinComplexityScore is the score below which a projection is too
// trivial to be worth pushing down.
const MinComplexityScore = 5

// Complexity summarizes a projection's shape for the pushdown gate.
type Complexity struct {
	Score       int
	FieldCount  int
	NestedCount int
	MaxDepth    int
}

// Analyzer scores projection complexity. The strategy treats it as an
// opaque scorer; callers may inject their own.
type Analyzer interface {
	AnalyzeProjection(d *Descriptor) Complexity
}

// DefaultAnalyzer returns the built-in scorer: one point per field at
// any level, two per nested descriptor, two per nesting level beyond
// the first.
func DefaultAnalyzer() Analyzer {
	return defaultAnalyzer{}
}

type defaultAnalyzer struct{}

func (defaultAnalyzer) AnalyzeProjection(d *Descriptor) Complexity {
	var c Complexity
	measure(d, 1, &c)
	c.Score = c.FieldCount + 2*c.NestedCount + 2*(c.MaxDepth-1)
	if c.Score < 0 {
		c.Score = 0
	}
	return c
}

func measure(d *Descriptor, depth int, c *Complexity) {
	if d == nil || depth > maxProjectionNesting {
		return
	}
	if depth > c.MaxDepth {
		c.MaxDepth = depth
	}
	for _, f := range d.Fields {
		c.FieldCount++
		if f.Nested != nil {
			c.NestedCount++
			measure(f.Nested, depth+1, c)
		}
	}
}
