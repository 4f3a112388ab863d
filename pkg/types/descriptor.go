package types

import "strings"

// IndexType describes how well an index covers a collection's access path.
type IndexType string

const (
	IndexNone    IndexType = "none"
	IndexPartial IndexType = "partial"
	IndexFull    IndexType = "full"
)

func (t IndexType) String() string {
	return string(t)
}

// ParseIndexType maps a descriptor string to an IndexType. Unknown or empty
// values fall back to IndexNone, matching the behavior for collections with
// no recorded index metadata.
func ParseIndexType(s string) IndexType {
	switch IndexType(strings.ToLower(strings.TrimSpace(s))) {
	case IndexPartial:
		return IndexPartial
	case IndexFull:
		return IndexFull
	default:
		return IndexNone
	}
}

// MemoryType describes how memory-resident a collection is expected to be.
type MemoryType string

const (
	MemoryLow    MemoryType = "low"
	MemoryMedium MemoryType = "medium"
	MemoryHigh   MemoryType = "high"
)

func (t MemoryType) String() string {
	return string(t)
}

// ParseMemoryType maps a descriptor string to a MemoryType. Unknown or empty
// values fall back to MemoryLow.
func ParseMemoryType(s string) MemoryType {
	switch MemoryType(strings.ToLower(strings.TrimSpace(s))) {
	case MemoryMedium:
		return MemoryMedium
	case MemoryHigh:
		return MemoryHigh
	default:
		return MemoryLow
	}
}
