package cache

import "hybridcache/core/port/out"

// Sizer computes the accounted byte size of an entry's value, per §4.1's
// memory accounting design. Two implementations are first-class: Dynamic
// inspects the value, Fixed charges a flat average per entry.
type Sizer interface {
	Size(value []byte, isNull bool) int
}

// DynamicSizer fast-paths raw bytes and falls back to the Serializer's
// encoded length for anything else. Since MemoryStore only ever sees
// already-encoded []byte (the Typed[T] boundary marshals before Set),
// the fast path is simply len(value); the Serializer fallback exists so
// a Sizer can be reused by callers that size pre-encoding Go values
// (e.g. an admin endpoint estimating the cost of a value before it is
// cached).
type DynamicSizer struct {
	ser out.Serializer
}

// NewDynamicSizer builds a Sizer that accounts stored bytes directly and
// falls back to ser for unencoded values passed to SizeValue.
func NewDynamicSizer(ser out.Serializer) *DynamicSizer {
	return &DynamicSizer{ser: ser}
}

func (s *DynamicSizer) Size(value []byte, isNull bool) int {
	if isNull {
		return 0
	}
	return len(value)
}

// SizeValue estimates the accounted size of an arbitrary Go value
// before it is serialized, using fast paths for primitives, strings,
// and byte slices, falling back to a serializer round-trip otherwise.
func (s *DynamicSizer) SizeValue(value any) int {
	switch v := value.(type) {
	case nil:
		return 0
	case string:
		return len(v)
	case []byte:
		return len(v)
	case bool:
		return 1
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		return 8
	default:
		if s.ser == nil {
			return 0
		}
		data, err := s.ser.Serialize(value)
		if err != nil {
			return 0
		}
		return len(data)
	}
}

// FixedSizer charges every entry the same configured average size,
// independent of its actual payload.
type FixedSizer struct {
	Average int
}

// NewFixedSizer builds a Sizer that reports Average for every entry.
func NewFixedSizer(average int) *FixedSizer {
	if average <= 0 {
		average = 64
	}
	return &FixedSizer{Average: average}
}

func (s *FixedSizer) Size([]byte, bool) int {
	return s.Average
}
