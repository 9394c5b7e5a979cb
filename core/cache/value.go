package cache

// State distinguishes the three possible outcomes of a read, per the
// data model's CacheValue<T>: a value was found, the key was found but
// its stored value is an explicit null, or the key is simply absent.
type State int

const (
	StateNoValue State = iota
	StateNull
	StateHasValue
)

func (s State) String() string {
	switch s {
	case StateHasValue:
		return "has-value"
	case StateNull:
		return "explicit-null"
	default:
		return "no-value"
	}
}

// Value is the byte-level result returned by every read path in this
// package. Typed callers wrap it with Typed[T] (see typed.go).
type Value struct {
	State State
	Data  []byte
}

// Found reports whether the key resolved to anything, null or not.
func (v Value) Found() bool {
	return v.State != StateNoValue
}

func noValue() Value { return Value{State: StateNoValue} }

func nullValue() Value { return Value{State: StateNull} }

func hasValue(data []byte) Value { return Value{State: StateHasValue, Data: data} }
